package gcs

import "testing"

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://rx-images/prescriptions/2025/01/02/a.png", "rx-images", "prescriptions/2025/01/02/a.png", false},
		{"gs://bucket/file.jpg", "bucket", "file.jpg", false},
		{"gs://bucket", "", "", true},
		{"gs://bucket/", "", "", true},
		{"gs:///object", "", "", true},
		{"s3://bucket/object", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseURI(%q) = (%q, %q), want (%q, %q)", tt.uri, bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}

func TestFilenameFromURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"gs://bucket/prescriptions/2025/01/02/abc.png", "abc.png"},
		{"gs://bucket/file.pdf", "file.pdf"},
		{"gs://bucket", "bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			if got := FilenameFromURI(tt.uri); got != tt.want {
				t.Errorf("FilenameFromURI(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestURI(t *testing.T) {
	uri := URI("bucket", "prescriptions/x.png")
	if uri != "gs://bucket/prescriptions/x.png" {
		t.Errorf("URI() = %q", uri)
	}

	bucket, object, err := ParseURI(uri)
	if err != nil || bucket != "bucket" || object != "prescriptions/x.png" {
		t.Errorf("ParseURI(URI()) = (%q, %q, %v)", bucket, object, err)
	}
}
