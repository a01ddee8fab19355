package dataset

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestImage(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func createCategoryDir(t *testing.T, root, name string, count int, c color.RGBA) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for i := 0; i < count; i++ {
		writeTestImage(t, filepath.Join(dir, string(rune('a'+i))+".png"), c)
	}
	return dir
}

func TestLoaderLoadsAllCategories(t *testing.T) {
	root := t.TempDir()
	recyclable := createCategoryDir(t, root, "recyclable", 3, color.RGBA{R: 255, A: 255})
	nonRecyclable := createCategoryDir(t, root, "non-recyclable", 2, color.RGBA{G: 255, A: 255})

	loader, err := NewLoader(8, 2, nil)
	require.NoError(t, err)
	ds, err := loader.Load([]Category{
		{Name: "Recyclable", Dir: recyclable},
		{Name: "Non-Recyclable", Dir: nonRecyclable},
	})
	require.NoError(t, err)

	require.Len(t, ds.Images, 5)
	require.Len(t, ds.Labels, 5)
	require.Equal(t, 3, ds.Counts["Recyclable"])
	require.Equal(t, 2, ds.Counts["Non-Recyclable"])
	require.Equal(t, 8, ds.ImageSize)
	require.Len(t, ds.Images[0], 3*8*8)
	require.Equal(t, "Recyclable", ds.Labels[0])
	require.Equal(t, "Non-Recyclable", ds.Labels[3])
}

func TestLoaderSortsFilenames(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "cat")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	// Created out of order: loading must still be lexicographic.
	writeTestImage(t, filepath.Join(dir, "b.png"), color.RGBA{G: 255, A: 255})
	writeTestImage(t, filepath.Join(dir, "a.png"), color.RGBA{R: 255, A: 255})

	loader, err := NewLoader(4, 1, nil)
	require.NoError(t, err)
	ds, err := loader.Load([]Category{{Name: "c", Dir: dir}})
	require.NoError(t, err)

	require.Len(t, ds.Images, 2)
	// a.png is red: its R plane leads.
	require.Greater(t, ds.Images[0][0], float32(0.9))
	require.Less(t, ds.Images[1][0], float32(0.1))
}

func TestLoaderMissingDirectoryFailsAsEmptyClass(t *testing.T) {
	root := t.TempDir()
	present := createCategoryDir(t, root, "present", 2, color.RGBA{R: 255, A: 255})

	loader, err := NewLoader(4, 1, nil)
	require.NoError(t, err)
	_, err = loader.Load([]Category{
		{Name: "Present", Dir: present},
		{Name: "Missing", Dir: filepath.Join(root, "nope")},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Missing")
}

func TestLoaderUndecodableImageFails(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "cat")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not an image"), 0o644))

	loader, err := NewLoader(4, 1, nil)
	require.NoError(t, err)
	_, err = loader.Load([]Category{{Name: "c", Dir: dir}})
	require.Error(t, err)
}

func TestLoaderIgnoresNonImageFiles(t *testing.T) {
	root := t.TempDir()
	dir := createCategoryDir(t, root, "cat", 2, color.RGBA{B: 255, A: 255})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))

	loader, err := NewLoader(4, 1, nil)
	require.NoError(t, err)
	ds, err := loader.Load([]Category{{Name: "c", Dir: dir}})
	require.NoError(t, err)
	require.Len(t, ds.Images, 2)
}
