package epub

import "testing"

func newDoc(items ...ManifestItem) *PackageDocument {
	doc := &PackageDocument{Manifest: map[string]ManifestItem{}}
	for _, item := range items {
		doc.Manifest[item.ID] = item
		doc.ManifestOrder = append(doc.ManifestOrder, item.ID)
	}
	return doc
}

func TestDetectCover_Properties(t *testing.T) {
	doc := newDoc(
		ManifestItem{ID: "ch1", Href: "text/ch1.xhtml", MediaType: "application/xhtml+xml"},
		ManifestItem{ID: "named", Href: "images/cover.jpg", MediaType: "image/jpeg"},
		ManifestItem{ID: "front", Href: "images/front.png", MediaType: "image/png", Properties: "cover-image"},
	)

	info := doc.DetectCover()
	if info == nil {
		t.Fatal("DetectCover() returned nil, want CoverInfo")
	}
	if info.ManifestID != "front" {
		t.Errorf("ManifestID = %q, want %q", info.ManifestID, "front")
	}
	if info.Href != "images/front.png" {
		t.Errorf("Href = %q, want %q", info.Href, "images/front.png")
	}
	if info.DetectionMethod != "properties" {
		t.Errorf("DetectionMethod = %q, want %q", info.DetectionMethod, "properties")
	}
}

func TestDetectCover_PropertiesAmongOthers(t *testing.T) {
	doc := newDoc(
		ManifestItem{ID: "img", Href: "img.jpg", MediaType: "image/jpeg", Properties: "svg cover-image"},
	)

	info := doc.DetectCover()
	if info == nil || info.ManifestID != "img" {
		t.Fatalf("DetectCover() = %+v, want img", info)
	}
}

func TestDetectCover_Filename(t *testing.T) {
	doc := newDoc(
		ManifestItem{ID: "photo", Href: "images/photo.png", MediaType: "image/png"},
		ManifestItem{ID: "cov", Href: "images/cover.jpg", MediaType: "image/jpeg"},
	)

	info := doc.DetectCover()
	if info == nil {
		t.Fatal("DetectCover() returned nil, want CoverInfo")
	}
	if info.Href != "images/cover.jpg" {
		t.Errorf("Href = %q, want %q", info.Href, "images/cover.jpg")
	}
	if info.DetectionMethod != "filename" {
		t.Errorf("DetectionMethod = %q, want %q", info.DetectionMethod, "filename")
	}
}

func TestDetectCover_FilenameCaseInsensitive(t *testing.T) {
	doc := newDoc(
		ManifestItem{ID: "c", Href: "Images/BookCover.JPEG", MediaType: "image/jpeg"},
	)

	info := doc.DetectCover()
	if info == nil || info.ManifestID != "c" {
		t.Fatalf("DetectCover() = %+v, want c", info)
	}
}

func TestDetectCover_FilenameRequiresRasterExt(t *testing.T) {
	doc := newDoc(
		ManifestItem{ID: "page", Href: "text/cover.xhtml", MediaType: "application/xhtml+xml"},
		ManifestItem{ID: "svg", Href: "images/cover.svg", MediaType: "image/svg+xml"},
		ManifestItem{ID: "gif", Href: "images/cover.gif", MediaType: "image/gif"},
	)

	if info := doc.DetectCover(); info != nil {
		t.Errorf("DetectCover() = %+v, want nil", info)
	}
}

func TestDetectCover_Meta(t *testing.T) {
	doc := newDoc(
		ManifestItem{ID: "img1", Href: "images/front.jpg", MediaType: "image/jpeg"},
	)
	doc.Metadata.CoverID = "img1"

	info := doc.DetectCover()
	if info == nil {
		t.Fatal("DetectCover() returned nil, want CoverInfo")
	}
	if info.DetectionMethod != "meta" {
		t.Errorf("DetectionMethod = %q, want %q", info.DetectionMethod, "meta")
	}
}

func TestDetectCover_MetaNeverOverridesFilename(t *testing.T) {
	doc := newDoc(
		ManifestItem{ID: "img1", Href: "images/front.jpg", MediaType: "image/jpeg"},
		ManifestItem{ID: "img2", Href: "images/cover.png", MediaType: "image/png"},
	)
	doc.Metadata.CoverID = "img1"

	info := doc.DetectCover()
	if info == nil || info.ManifestID != "img2" {
		t.Fatalf("DetectCover() = %+v, want img2", info)
	}
}

func TestDetectCover_MetaMissingItem(t *testing.T) {
	doc := newDoc(
		ManifestItem{ID: "ch1", Href: "ch1.xhtml", MediaType: "application/xhtml+xml"},
	)
	doc.Metadata.CoverID = "nonexistent"

	if info := doc.DetectCover(); info != nil {
		t.Errorf("DetectCover() = %+v, want nil", info)
	}
}

func TestDetectCover_NoCover(t *testing.T) {
	doc := newDoc()
	if info := doc.DetectCover(); info != nil {
		t.Errorf("DetectCover() = %+v, want nil", info)
	}
}

func TestCoverExt(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{href: "images/cover.png", want: "png"},
		{href: "images/cover.JPEG", want: "JPEG"},
		{href: "images/cover", want: "jpg"},
		{href: "images/cover.jpg#frag", want: "jpg"},
		{href: "", want: "jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			if got := coverExt(tt.href); got != tt.want {
				t.Errorf("coverExt(%q) = %q, want %q", tt.href, got, tt.want)
			}
		})
	}
}
