package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"wastenet/vision/preprocessing"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Category pairs a class name with the directory holding its images.
type Category struct {
	Name string
	Dir  string
}

// RawDataset holds decoded, resized images in CHW [0, 1] format, parallel to
// their string labels.
type RawDataset struct {
	Images    [][]float32
	Labels    []string
	ImageSize int
	Counts    map[string]int
}

// Loader reads category directories into a RawDataset.
type Loader struct {
	imageSize int
	workers   int
	logger    *zap.Logger
}

// NewLoader creates a loader that resizes every image to imageSize squared,
// decoding with up to workers goroutines.
func NewLoader(imageSize, workers int, logger *zap.Logger) (*Loader, error) {
	if imageSize < 1 {
		return nil, fmt.Errorf("image size must be >= 1, got %d", imageSize)
	}
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{imageSize: imageSize, workers: workers, logger: logger}, nil
}

// Load reads every category directory. Filenames are sorted before loading so
// sample order is stable across platforms. A missing directory is logged and
// skipped, but a category that ends up with zero samples is an error: it
// would silently vanish from the label space and poison every downstream
// stage. A file that fails to decode is also an error.
func (l *Loader) Load(categories []Category) (*RawDataset, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("no categories given")
	}

	ds := &RawDataset{
		ImageSize: l.imageSize,
		Counts:    make(map[string]int),
	}

	for _, cat := range categories {
		info, err := os.Stat(cat.Dir)
		if os.IsNotExist(err) {
			l.logger.Warn("category directory missing",
				zap.String("category", cat.Name),
				zap.String("dir", cat.Dir))
			ds.Counts[cat.Name] = 0
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to stat %q: %w", cat.Dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%q is not a directory", cat.Dir)
		}

		paths, err := listImageFiles(cat.Dir)
		if err != nil {
			return nil, err
		}
		images, err := preprocessing.PreprocessBatch(paths, l.imageSize, l.workers)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", cat.Name, err)
		}
		for _, img := range images {
			ds.Images = append(ds.Images, img.Data)
			ds.Labels = append(ds.Labels, cat.Name)
		}
		ds.Counts[cat.Name] = len(images)
		l.logger.Info("category loaded",
			zap.String("category", cat.Name),
			zap.Int("samples", len(images)))
	}

	for _, cat := range categories {
		if ds.Counts[cat.Name] == 0 {
			return nil, fmt.Errorf("category %q contributed no samples", cat.Name)
		}
	}
	return ds, nil
}

func listImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %q: %w", dir, err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
