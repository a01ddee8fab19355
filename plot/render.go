package plot

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"go.uber.org/zap"

	"wastenet/training"
	"wastenet/vision/preprocessing"
)

// palette holds the series colors used across all charts.
var palette = [][3]float64{
	{0.12, 0.47, 0.71},
	{1.00, 0.50, 0.05},
	{0.17, 0.63, 0.17},
	{0.84, 0.15, 0.16},
	{0.58, 0.40, 0.74},
}

// GridCell is one tile of an image grid: preprocessed pixels in CHW layout
// with values in [-1, 1], a caption drawn under the tile, and an optional
// red border for misclassified samples.
type GridCell struct {
	Pixels    []float32
	Caption   string
	Highlight bool
}

// Renderer draws evaluation charts as PNG files under a single output
// directory. Rendering is best effort: callers are expected to log a
// returned error and carry on, a failed chart never aborts a run.
type Renderer struct {
	outDir string
	logger *zap.Logger
}

// NewRenderer creates the output directory and returns a renderer writing
// into it.
func NewRenderer(outDir string, logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %v", err)
	}
	return &Renderer{outDir: outDir, logger: logger}, nil
}

func (r *Renderer) path(filename string) string {
	return filepath.Join(r.outDir, filename)
}

func (r *Renderer) savePNG(dc *gg.Context, filename string) error {
	path := r.path(filename)
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to write %s: %v", filename, err)
	}
	r.logger.Debug("chart rendered", zap.String("path", path))
	return nil
}

// SavePlotData writes a chart's JSON payload next to the rendered PNGs.
func (r *Renderer) SavePlotData(filename string, pd PlotData) error {
	data, err := pd.ToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(r.path(filename), []byte(data), 0o644)
}

// SaveBarChart renders labeled vertical bars, one per class.
func (r *Renderer) SaveBarChart(filename, title, yLabel string, labels []string, values []float64) error {
	if len(labels) != len(values) || len(values) == 0 {
		return fmt.Errorf("bar chart needs matching non-empty labels and values")
	}
	const width, height = 640, 440
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	r.drawBarPanel(dc, 0, 0, width, height, title, yLabel, labels, values)
	return r.savePNG(dc, filename)
}

func (r *Renderer) drawBarPanel(dc *gg.Context, ox, oy float64, width, height int, title, yLabel string, labels []string, values []float64) {
	left, right := ox+60.0, ox+float64(width)-20
	top, bottom := oy+50.0, oy+float64(height)-50

	maxVal := 0.0
	for _, v := range values {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal == 0 {
		maxVal = 1
	}

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(title, ox+float64(width)/2, oy+25, 0.5, 0.5)
	dc.DrawStringAnchored(yLabel, ox+15, (top+bottom)/2, 0.5, 0.5)

	dc.SetLineWidth(1)
	dc.DrawLine(left, bottom, right, bottom)
	dc.DrawLine(left, top, left, bottom)
	dc.Stroke()

	slot := (right - left) / float64(len(values))
	barWidth := slot * 0.6
	for i, v := range values {
		c := palette[i%len(palette)]
		barHeight := (bottom - top) * v / maxVal
		x := left + float64(i)*slot + (slot-barWidth)/2

		dc.SetRGB(c[0], c[1], c[2])
		dc.DrawRectangle(x, bottom-barHeight, barWidth, barHeight)
		dc.Fill()

		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(fmt.Sprintf("%.4g", v), x+barWidth/2, bottom-barHeight-10, 0.5, 0.5)
		dc.DrawStringAnchored(labels[i], x+barWidth/2, bottom+15, 0.5, 0.5)
	}
}

// SaveTrainingCurves renders accuracy and loss over epochs, train and
// validation series side by side in two panels.
func (r *Renderer) SaveTrainingCurves(filename string, history *training.History) error {
	if history == nil || len(history.Epochs) == 0 {
		return fmt.Errorf("training history is empty")
	}
	const panelW, panelH = 480, 400
	dc := gg.NewContext(panelW*2, panelH)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	epochs := make([]float64, len(history.Epochs))
	trainAcc := make([]float64, len(history.Epochs))
	valAcc := make([]float64, len(history.Epochs))
	trainLoss := make([]float64, len(history.Epochs))
	valLoss := make([]float64, len(history.Epochs))
	for i, m := range history.Epochs {
		epochs[i] = float64(m.Epoch)
		trainAcc[i] = m.TrainAccuracy
		valAcc[i] = m.ValAccuracy
		trainLoss[i] = m.TrainLoss
		valLoss[i] = m.ValLoss
	}

	r.drawLinePanel(dc, 0, 0, panelW, panelH, "Model Accuracy", "Accuracy", epochs,
		[]string{"train", "validation"}, [][]float64{trainAcc, valAcc})
	r.drawLinePanel(dc, panelW, 0, panelW, panelH, "Model Loss", "Loss", epochs,
		[]string{"train", "validation"}, [][]float64{trainLoss, valLoss})
	return r.savePNG(dc, filename)
}

func (r *Renderer) drawLinePanel(dc *gg.Context, ox, oy float64, width, height int, title, yLabel string, xs []float64, names []string, series [][]float64) {
	left, right := ox+60.0, ox+float64(width)-20
	top, bottom := oy+50.0, oy+float64(height)-45

	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s {
			minY = math.Min(minY, v)
			maxY = math.Max(maxY, v)
		}
	}
	if maxY == minY {
		maxY = minY + 1
	}
	minX, maxX := xs[0], xs[len(xs)-1]
	if maxX == minX {
		maxX = minX + 1
	}

	toX := func(x float64) float64 { return left + (x-minX)/(maxX-minX)*(right-left) }
	toY := func(y float64) float64 { return bottom - (y-minY)/(maxY-minY)*(bottom-top) }

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(title, ox+float64(width)/2, oy+25, 0.5, 0.5)
	dc.DrawStringAnchored(yLabel, ox+15, (top+bottom)/2, 0.5, 0.5)
	dc.DrawStringAnchored("Epoch", (left+right)/2, bottom+30, 0.5, 0.5)

	// Horizontal grid with axis values.
	for i := 0; i <= 4; i++ {
		v := minY + (maxY-minY)*float64(i)/4
		y := toY(v)
		dc.SetRGB(0.9, 0.9, 0.9)
		dc.SetLineWidth(1)
		dc.DrawLine(left, y, right, y)
		dc.Stroke()
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(fmt.Sprintf("%.3f", v), left-8, y, 1, 0.5)
	}
	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(fmt.Sprintf("%.0f", minX), left, bottom+15, 0.5, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.0f", maxX), right, bottom+15, 0.5, 0.5)

	dc.DrawLine(left, bottom, right, bottom)
	dc.DrawLine(left, top, left, bottom)
	dc.Stroke()

	for si, s := range series {
		c := palette[si%len(palette)]
		dc.SetRGB(c[0], c[1], c[2])
		dc.SetLineWidth(2)
		for i := 1; i < len(s); i++ {
			dc.DrawLine(toX(xs[i-1]), toY(s[i-1]), toX(xs[i]), toY(s[i]))
		}
		dc.Stroke()

		// Legend entry in the top-left corner of the panel.
		ly := top + 12 + float64(si)*16
		dc.DrawLine(left+10, ly, left+30, ly)
		dc.Stroke()
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(names[si], left+36, ly, 0, 0.5)
	}
}

// SaveConfusionMatrix renders true-vs-predicted counts as a heatmap with the
// counts printed in each cell.
func (r *Renderer) SaveConfusionMatrix(filename string, matrix [][]int, classNames []string) error {
	n := len(matrix)
	if n == 0 || len(classNames) != n {
		return fmt.Errorf("confusion matrix and class names must be non-empty and aligned")
	}
	const width, height = 620, 620
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	r.drawConfusionPanel(dc, 0, 0, width, height, matrix, classNames)
	return r.savePNG(dc, filename)
}

func (r *Renderer) drawConfusionPanel(dc *gg.Context, ox, oy float64, width, height int, matrix [][]int, classNames []string) {
	n := len(matrix)
	left, top := ox+110.0, oy+80.0
	cell := math.Min((ox+float64(width)-40-left)/float64(n), (oy+float64(height)-40-top)/float64(n))

	maxCount := 1
	for _, row := range matrix {
		for _, v := range row {
			if v > maxCount {
				maxCount = v
			}
		}
	}

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored("Confusion Matrix", ox+float64(width)/2, oy+25, 0.5, 0.5)
	dc.DrawStringAnchored("Predicted", left+cell*float64(n)/2, oy+50, 0.5, 0.5)

	for i, row := range matrix {
		for j, count := range row {
			x := left + float64(j)*cell
			y := top + float64(i)*cell
			shade := float64(count) / float64(maxCount)

			// White through blue, matplotlib Blues style.
			dc.SetRGB(1-0.85*shade, 1-0.55*shade, 1-0.25*shade)
			dc.DrawRectangle(x, y, cell, cell)
			dc.Fill()

			if shade > 0.6 {
				dc.SetRGB(1, 1, 1)
			} else {
				dc.SetRGB(0, 0, 0)
			}
			dc.DrawStringAnchored(fmt.Sprintf("%d", count), x+cell/2, y+cell/2, 0.5, 0.5)
		}
	}

	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	for i := 0; i <= n; i++ {
		dc.DrawLine(left, top+float64(i)*cell, left+cell*float64(n), top+float64(i)*cell)
		dc.DrawLine(left+float64(i)*cell, top, left+float64(i)*cell, top+cell*float64(n))
	}
	dc.Stroke()

	for i, name := range classNames {
		dc.DrawStringAnchored(truncate(name, 14), left-8, top+float64(i)*cell+cell/2, 1, 0.5)
		dc.DrawStringAnchored(truncate(name, 14), left+float64(i)*cell+cell/2, top+cell*float64(n)+15, 0.5, 0.5)
	}
}

// SaveROCCurve renders a binary ROC curve with the chance diagonal and the
// AUC in the title.
func (r *Renderer) SaveROCCurve(filename string, points []training.ROCPoint, auc float64) error {
	if len(points) == 0 {
		return fmt.Errorf("ROC curve has no points")
	}
	const width, height = 560, 560
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	left, right := 70.0, float64(width)-30
	top, bottom := 60.0, float64(height)-60
	toX := func(v float64) float64 { return left + v*(right-left) }
	toY := func(v float64) float64 { return bottom - v*(bottom-top) }

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(fmt.Sprintf("ROC Curve (AUC = %.4f)", auc), float64(width)/2, 28, 0.5, 0.5)
	dc.DrawStringAnchored("False Positive Rate", (left+right)/2, bottom+35, 0.5, 0.5)
	dc.DrawStringAnchored("True Positive Rate", 20, (top+bottom)/2, 0.5, 0.5)

	for i := 0; i <= 4; i++ {
		v := float64(i) / 4
		dc.SetRGB(0.9, 0.9, 0.9)
		dc.DrawLine(toX(v), top, toX(v), bottom)
		dc.DrawLine(left, toY(v), right, toY(v))
		dc.Stroke()
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(fmt.Sprintf("%.2f", v), toX(v), bottom+15, 0.5, 0.5)
		dc.DrawStringAnchored(fmt.Sprintf("%.2f", v), left-8, toY(v), 1, 0.5)
	}

	dc.DrawLine(left, bottom, right, bottom)
	dc.DrawLine(left, top, left, bottom)
	dc.Stroke()

	// Chance diagonal.
	dc.SetRGB(0.6, 0.6, 0.6)
	dc.SetDash(6, 4)
	dc.DrawLine(toX(0), toY(0), toX(1), toY(1))
	dc.Stroke()
	dc.SetDash()

	c := palette[0]
	dc.SetRGB(c[0], c[1], c[2])
	dc.SetLineWidth(2)
	for i := 1; i < len(points); i++ {
		dc.DrawLine(toX(points[i-1].FPR), toY(points[i-1].TPR), toX(points[i].FPR), toY(points[i].TPR))
	}
	dc.Stroke()

	return r.savePNG(dc, filename)
}

// SaveImageGrid renders up to maxCells image tiles with captions, four tiles
// per row. Highlighted cells get a red border.
func (r *Renderer) SaveImageGrid(filename, title string, cells []GridCell, imageSize, maxCells int) error {
	if len(cells) == 0 {
		return fmt.Errorf("image grid has no cells")
	}
	if maxCells > 0 && len(cells) > maxCells {
		cells = cells[:maxCells]
	}

	const cols, tile, pad = 4, 160, 14
	rows := (len(cells) + cols - 1) / cols
	width := cols*(tile+pad) + pad
	height := rows*(tile+pad+22) + pad + 40

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(title, float64(width)/2, 22, 0.5, 0.5)

	for i, cell := range cells {
		col, row := i%cols, i/cols
		x := float64(pad + col*(tile+pad))
		y := float64(40 + pad + row*(tile+pad+22))

		img, err := chwToImage(cell.Pixels, imageSize)
		if err != nil {
			return fmt.Errorf("cell %d: %v", i, err)
		}
		scaled := scaleImage(img, tile)
		dc.DrawImage(scaled, int(x), int(y))

		if cell.Highlight {
			dc.SetRGB(0.84, 0.15, 0.16)
			dc.SetLineWidth(3)
			dc.DrawRectangle(x, y, tile, tile)
			dc.Stroke()
		}
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(truncate(cell.Caption, 26), x+tile/2, y+tile+12, 0.5, 0.5)
	}
	return r.savePNG(dc, filename)
}

// SaveGradCAMOverlay renders the original image next to the same image with
// the saliency heatmap alpha-blended on top. heatmap must already be resized
// to imageSize x imageSize with values in [0, 1].
func (r *Renderer) SaveGradCAMOverlay(filename, caption string, pixels []float32, imageSize int, heatmap []float32) error {
	if len(heatmap) != imageSize*imageSize {
		return fmt.Errorf("heatmap size %d does not match image size %d", len(heatmap), imageSize)
	}
	base, err := chwToImage(pixels, imageSize)
	if err != nil {
		return err
	}

	overlay := image.NewRGBA(image.Rect(0, 0, imageSize, imageSize))
	for y := 0; y < imageSize; y++ {
		for x := 0; x < imageSize; x++ {
			bc := base.RGBAAt(x, y)
			hr, hg, hb := heatColor(heatmap[y*imageSize+x])
			const alpha = 0.45
			overlay.SetRGBA(x, y, color.RGBA{
				R: blend(bc.R, hr, alpha),
				G: blend(bc.G, hg, alpha),
				B: blend(bc.B, hb, alpha),
				A: 255,
			})
		}
	}

	const tile, pad = 280, 20
	width := tile*2 + pad*3
	height := tile + pad*2 + 50
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(caption, float64(width)/2, 22, 0.5, 0.5)

	dc.DrawImage(scaleImage(base, tile), pad, 40+pad/2)
	dc.DrawImage(scaleImage(overlay, tile), tile+pad*2, 40+pad/2)
	dc.DrawStringAnchored("input", pad+tile/2, float64(height)-14, 0.5, 0.5)
	dc.DrawStringAnchored("attention", float64(tile+pad*2+tile/2), float64(height)-14, 0.5, 0.5)

	return r.savePNG(dc, filename)
}

// SaveDashboard renders a single summary image: class distribution, training
// curves, and the confusion matrix in three panels.
func (r *Renderer) SaveDashboard(filename string, history *training.History, matrix [][]int, classNames []string, counts []int) error {
	if history == nil || len(history.Epochs) == 0 || len(matrix) == 0 {
		return fmt.Errorf("dashboard needs training history and a confusion matrix")
	}
	if len(classNames) != len(counts) || len(classNames) != len(matrix) {
		return fmt.Errorf("class names, counts, and confusion matrix must be aligned")
	}
	const panelW, panelH = 460, 460
	dc := gg.NewContext(panelW*3, panelH)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	values := make([]float64, len(counts))
	for i, c := range counts {
		values[i] = float64(c)
	}
	r.drawBarPanel(dc, 0, 0, panelW, panelH, "Class Distribution", "Samples", classNames, values)

	epochs := make([]float64, len(history.Epochs))
	trainAcc := make([]float64, len(history.Epochs))
	valAcc := make([]float64, len(history.Epochs))
	for i, m := range history.Epochs {
		epochs[i] = float64(m.Epoch)
		trainAcc[i] = m.TrainAccuracy
		valAcc[i] = m.ValAccuracy
	}
	r.drawLinePanel(dc, panelW, 0, panelW, panelH, "Model Accuracy", "Accuracy", epochs,
		[]string{"train", "validation"}, [][]float64{trainAcc, valAcc})

	r.drawConfusionPanel(dc, panelW*2, 0, panelW, panelH, matrix, classNames)

	return r.savePNG(dc, filename)
}

// chwToImage converts CHW pixels in [-1, 1] into an RGBA image.
func chwToImage(pixels []float32, size int) (*image.RGBA, error) {
	plane := size * size
	if len(pixels) != 3*plane {
		return nil, fmt.Errorf("expected %d pixel values, got %d", 3*plane, len(pixels))
	}
	unit := make([]float32, len(pixels))
	copy(unit, pixels)
	preprocessing.Denormalize(unit)

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := y*size + x
			img.SetRGBA(x, y, color.RGBA{
				R: toByte(unit[i]),
				G: toByte(unit[plane+i]),
				B: toByte(unit[2*plane+i]),
				A: 255,
			})
		}
	}
	return img, nil
}

// scaleImage resizes a square image to target x target with nearest-neighbor
// sampling, which is fine for display tiles.
func scaleImage(src *image.RGBA, target int) *image.RGBA {
	size := src.Bounds().Dx()
	if size == target {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, target, target))
	for y := 0; y < target; y++ {
		sy := y * size / target
		for x := 0; x < target; x++ {
			dst.SetRGBA(x, y, src.RGBAAt(x*size/target, sy))
		}
	}
	return dst
}

// heatColor maps [0, 1] to a blue-to-red jet ramp.
func heatColor(v float32) (uint8, uint8, uint8) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	// Piecewise jet: blue -> cyan -> yellow -> red.
	switch {
	case v < 0.25:
		return 0, toByte(v * 4), 255
	case v < 0.5:
		return 0, 255, toByte(1 - (v-0.25)*4)
	case v < 0.75:
		return toByte((v - 0.5) * 4), 255, 0
	default:
		return 255, toByte(1 - (v-0.75)*4), 0
	}
}

func blend(base, heat uint8, alpha float64) uint8 {
	return uint8(float64(base)*(1-alpha) + float64(heat)*alpha)
}

func toByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-2] + ".."
}
