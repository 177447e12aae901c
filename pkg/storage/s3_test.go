package storage

import "testing"

func TestValidatePhotoType(t *testing.T) {
	for _, name := range []string{"a.jpg", "a.JPEG", "a.png", "a.webp"} {
		if !ValidatePhotoType(name) {
			t.Errorf("%s rejected", name)
		}
	}
	for _, name := range []string{"a.gif", "a.txt", "a", "a.png.exe"} {
		if ValidatePhotoType(name) {
			t.Errorf("%s accepted", name)
		}
	}
}

func TestObjectKeys(t *testing.T) {
	if got, want := AvatarKey("u1", "face.png"), "avatars/u1/face.png"; got != want {
		t.Errorf("AvatarKey = %q, want %q", got, want)
	}
	if got, want := CamStatusKey("m1", "u1", "shot.jpg"), "camstatuses/m1/u1/shot.jpg"; got != want {
		t.Errorf("CamStatusKey = %q, want %q", got, want)
	}
	// Path traversal in the filename is stripped to its base.
	if got, want := AvatarKey("u1", "../../etc/passwd"), "avatars/u1/passwd"; got != want {
		t.Errorf("AvatarKey traversal = %q, want %q", got, want)
	}
}
