package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveAssets(t *testing.T) {
	assets := []Asset{
		{Filename: "img_001.jpg", Data: []byte("first")},
		{Filename: "img_002.png", Data: []byte("second")},
	}
	archive := ArchiveAssets(assets)
	if len(archive) == 0 {
		t.Fatalf("empty archive")
	}

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("entries = %d, want 2", len(zr.File))
	}
	for i, f := range zr.File {
		if f.Name != assets[i].Filename {
			t.Fatalf("entry %d = %q, want %q", i, f.Name, assets[i].Filename)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry: %v", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry: %v", err)
		}
		if !bytes.Equal(data, assets[i].Data) {
			t.Fatalf("entry %d data mismatch", i)
		}
	}
}

func TestArchiveAssetsEmpty(t *testing.T) {
	archive := ArchiveAssets(nil)
	if _, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive))); err != nil {
		t.Fatalf("empty archive must still be a valid zip: %v", err)
	}
}
