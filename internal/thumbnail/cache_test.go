package thumbnail

import "testing"

func TestFileURL(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/home/user/a.png", "file:///home/user/a.png"},
		{"/tmp/a b/c#d?.png", "file:///tmp/a%20b/c%23d%3F.png"},
		{"/data/ü.txt", "file:///data/%C3%BC.txt"},
		{"/x/it's(1)+2;v=3@h:4", "file:///x/it's(1)+2;v=3@h:4"},
		{"/x/100%", "file:///x/100%25"},
	}
	for _, tt := range tests {
		if got := FileURL(tt.path); got != tt.want {
			t.Errorf("FileURL(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestCacheName(t *testing.T) {
	if got, want := CacheName("/home/user/a.png"), "790716fccb8cd45e1fa05be63cfcee8d.png"; got != want {
		t.Errorf("CacheName() = %q, want %q", got, want)
	}
}

func TestSizeClass(t *testing.T) {
	tests := []struct {
		in    string
		want  SizeClass
		bound int
		dir   string
	}{
		{"small", Small, 64, "small"},
		{"Normal", Normal, 128, "normal"},
		{"256", Large, 256, "large"},
	}
	for _, tt := range tests {
		got, err := ParseSizeClass(tt.in)
		if err != nil {
			t.Fatalf("ParseSizeClass(%q) error = %v", tt.in, err)
		}
		if got != tt.want || got.Bound() != tt.bound || got.Dir() != tt.dir {
			t.Errorf("ParseSizeClass(%q) = %v (%d, %q)", tt.in, got, got.Bound(), got.Dir())
		}
	}

	for _, bad := range []string{"", "huge", "100", "fail"} {
		if _, err := ParseSizeClass(bad); err == nil {
			t.Errorf("ParseSizeClass(%q) succeeded", bad)
		}
	}
	if SizeClass(7).Valid() {
		t.Error("SizeClass(7).Valid() = true")
	}
}
