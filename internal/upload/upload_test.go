package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)

type part struct {
	field, name string
	data        []byte
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		w, err := mw.CreateFormFile(p.field, p.name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write(p.data)
	}
	mw.Close()
	r := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func TestCheck_AcceptsImage(t *testing.T) {
	p := ImagePolicy()
	r := multipartRequest(t, part{"photos", "../../etc/cake.png", pngBytes})

	files, aerr := p.Check(httptest.NewRecorder(), r)
	if aerr != nil {
		t.Fatalf("Check: %v", aerr)
	}
	if len(files) != 1 {
		t.Fatalf("files = %d", len(files))
	}
	f := files[0]
	if f.ContentType != "image/png" || f.Ext != ".png" {
		t.Fatalf("sniffed %s %s", f.ContentType, f.Ext)
	}
	if f.Name != "cake.png" {
		t.Fatalf("name = %q, want directory stripped", f.Name)
	}
}

func TestCheck_Rejects(t *testing.T) {
	small := ImagePolicy()
	small.MaxBytes = 32
	small.MaxFiles = 2

	tests := []struct {
		name   string
		policy Policy
		parts  []part
		status int
	}{
		{"no file", ImagePolicy(), []part{{"other", "a.png", pngBytes}}, http.StatusBadRequest},
		{"disguised text", ImagePolicy(), []part{{"photos", "a.png", []byte("just some text")}}, http.StatusUnsupportedMediaType},
		{"too large", small, []part{{"photos", "a.png", pngBytes}}, http.StatusRequestEntityTooLarge},
		{"too many", small, []part{
			{"photos", "a.png", pngBytes[:16]},
			{"photos", "b.png", pngBytes[:16]},
			{"photos", "c.png", pngBytes[:16]},
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, aerr := tt.policy.Check(httptest.NewRecorder(), multipartRequest(t, tt.parts...))
			if aerr == nil {
				t.Fatal("expected rejection")
			}
			if aerr.Status != tt.status {
				t.Fatalf("status = %d, want %d (%s)", aerr.Status, tt.status, aerr.Message)
			}
		})
	}
}

func TestCheck_NotMultipart(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("{}"))
	r.Header.Set("Content-Type", "application/json")
	if _, aerr := ImagePolicy().Check(httptest.NewRecorder(), r); aerr == nil || aerr.Status != http.StatusBadRequest {
		t.Fatalf("aerr = %v", aerr)
	}
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"a.png":           "a.png",
		"../../x.png":     "x.png",
		`C:\tmp\y.jpg`:    "y.jpg",
		"bad\x00name.gif": "badname.gif",
		"":                "upload",
	}
	for in, want := range tests {
		if got := safeName(in); got != want {
			t.Errorf("safeName(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakeS3 struct {
	in  *s3.PutObjectInput
	err error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Store_Put(t *testing.T) {
	fake := &fakeS3{}
	s, err := NewS3Store(context.Background(), S3Options{Bucket: "gallery", Prefix: "/invitations/", Client: fake})
	if err != nil {
		t.Fatal(err)
	}
	f := File{Size: int64(len(pngBytes)), ContentType: "image/png", Data: pngBytes}
	if err := s.Put(context.Background(), "inv1/p1.png", f); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if *fake.in.Bucket != "gallery" || *fake.in.Key != "invitations/inv1/p1.png" {
		t.Fatalf("put s3://%s/%s", *fake.in.Bucket, *fake.in.Key)
	}
	if *fake.in.ContentType != "image/png" {
		t.Fatalf("content type = %s", *fake.in.ContentType)
	}
	body, _ := io.ReadAll(fake.in.Body)
	if !bytes.Equal(body, pngBytes) {
		t.Fatal("body mismatch")
	}

	fake.in = nil
	if err := s.Put(context.Background(), "../other/p1.png", f); err == nil || fake.in != nil {
		t.Fatalf("dot-segment key: err=%v, put called=%v", err, fake.in != nil)
	}

	fake.err = errors.New("boom")
	if err := s.Put(context.Background(), "k", f); err == nil {
		t.Fatal("expected wrapped error")
	}
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), S3Options{Client: &fakeS3{}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	m.Put(context.Background(), "k", File{Name: "a"})
	if f, ok := m.Get("k"); !ok || f.Name != "a" {
		t.Fatalf("Get = %+v %v", f, ok)
	}
	if err := m.Put(context.Background(), "a/./b", File{}); err == nil {
		t.Fatal("expected dot-segment key to be refused")
	}
}
