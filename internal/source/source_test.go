package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeDownloader struct {
	objects map[string]string
	gotKey  string
}

func (d *fakeDownloader) Download(_ context.Context, w io.WriterAt, in *s3.GetObjectInput, _ ...func(*manager.Downloader)) (int64, error) {
	d.gotKey = aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	body, ok := d.objects[d.gotKey]
	if !ok {
		return 0, errors.New("NoSuchKey")
	}
	n, err := w.WriteAt([]byte(body), 0)
	return int64(n), err
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		ref     string
		bucket  string
		key     string
		ok      bool
		wantErr bool
	}{
		{ref: "s3://art/in/fox.png", bucket: "art", key: "in/fox.png", ok: true},
		{ref: "./fox.png"},
		{ref: "/tmp/s3://x"},
		{ref: "s3://art", ok: true, wantErr: true},
		{ref: "s3:///fox.png", ok: true, wantErr: true},
		{ref: "s3://art/dir/", ok: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			bucket, key, ok, err := ParseS3URI(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseS3URI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.ok || bucket != tt.bucket || key != tt.key {
				t.Errorf("ParseS3URI() = %q, %q, %v; want %q, %q, %v", bucket, key, ok, tt.bucket, tt.key, tt.ok)
			}
		})
	}
}

func TestOpener_Open(t *testing.T) {
	ctx := context.Background()

	t.Run("local file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fox.png")
		if err := os.WriteFile(path, []byte("png bytes"), 0600); err != nil {
			t.Fatal(err)
		}

		f, err := NewOpener(nil).Open(ctx, path)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer f.Close()
		if f.Filename != "fox.png" {
			t.Errorf("Filename = %q, want fox.png", f.Filename)
		}
		b, _ := io.ReadAll(f.Content)
		if string(b) != "png bytes" {
			t.Errorf("content = %q", b)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewOpener(nil).Open(ctx, filepath.Join(t.TempDir(), "nope.png"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Open() error = %v, want not exist", err)
		}
	})

	t.Run("directory", func(t *testing.T) {
		if _, err := NewOpener(nil).Open(ctx, t.TempDir()); err == nil {
			t.Error("Open() of a directory expected error")
		}
	})

	t.Run("stdin", func(t *testing.T) {
		o := NewOpener(nil)
		o.stdin = strings.NewReader("piped")
		f, err := o.Open(ctx, "-")
		if err != nil {
			t.Fatal(err)
		}
		b, _ := io.ReadAll(f.Content)
		if string(b) != "piped" || f.Filename != "stdin" {
			t.Errorf("Open(-) = %q named %q", b, f.Filename)
		}
	})

	t.Run("s3 object", func(t *testing.T) {
		d := &fakeDownloader{objects: map[string]string{"art/in/fox.png": "remote png"}}
		f, err := NewOpener(d).Open(ctx, "s3://art/in/fox.png")
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer f.Close()
		b, _ := io.ReadAll(f.Content)
		if string(b) != "remote png" {
			t.Errorf("content = %q", b)
		}
		if f.Filename != "fox.png" {
			t.Errorf("Filename = %q, want fox.png", f.Filename)
		}
	})

	t.Run("s3 missing object", func(t *testing.T) {
		d := &fakeDownloader{objects: map[string]string{}}
		if _, err := NewOpener(d).Open(ctx, "s3://art/none.png"); err == nil {
			t.Error("Open() expected error for a missing object")
		}
	})

	t.Run("s3 without downloader", func(t *testing.T) {
		if _, err := NewOpener(nil).Open(ctx, "s3://art/fox.png"); err == nil {
			t.Error("Open() expected error without a downloader")
		}
	})
}
