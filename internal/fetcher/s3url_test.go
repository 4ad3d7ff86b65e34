package fetcher

import "testing"

func TestParseS3URLVirtualHosted(t *testing.T) {
	loc, ok, err := parseS3URL("https://kyc-docs.s3.ap-south-1.amazonaws.com/uploads/aadhaar.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected url to be recognized as s3")
	}
	if loc.Bucket != "kyc-docs" || loc.Key != "uploads/aadhaar.jpg" {
		t.Fatalf("unexpected location: %+v", loc)
	}
}

func TestParseS3URLVirtualHostedWithoutRegion(t *testing.T) {
	loc, ok, err := parseS3URL("https://kyc-docs.s3.amazonaws.com/selfie.png")
	if err != nil || !ok {
		t.Fatalf("expected recognized s3 url, got ok=%v err=%v", ok, err)
	}
	if loc.Bucket != "kyc-docs" || loc.Key != "selfie.png" {
		t.Fatalf("unexpected location: %+v", loc)
	}
}

func TestParseS3URLPathStyle(t *testing.T) {
	loc, ok, err := parseS3URL("https://s3.ap-south-1.amazonaws.com/kyc-docs/uploads/passport.jpg")
	if err != nil || !ok {
		t.Fatalf("expected recognized s3 url, got ok=%v err=%v", ok, err)
	}
	if loc.Bucket != "kyc-docs" || loc.Key != "uploads/passport.jpg" {
		t.Fatalf("unexpected location: %+v", loc)
	}
}

func TestParseS3URLNonS3HostPassesThrough(t *testing.T) {
	_, ok, err := parseS3URL("https://cdn.example.com/photo.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected non-amazonaws host to be treated as plain http")
	}
}

func TestParseS3URLMissingKeyIsAnError(t *testing.T) {
	if _, _, err := parseS3URL("https://kyc-docs.s3.ap-south-1.amazonaws.com/"); err == nil {
		t.Error("expected virtual-hosted url without key to fail")
	}
	if _, _, err := parseS3URL("https://s3.ap-south-1.amazonaws.com/kyc-docs"); err == nil {
		t.Error("expected path-style url without key to fail")
	}
}

func TestParseS3URLUnsupportedLayout(t *testing.T) {
	if _, _, err := parseS3URL("https://dynamodb.ap-south-1.amazonaws.com/table"); err == nil {
		t.Error("expected non-s3 amazonaws url to be rejected")
	}
}
