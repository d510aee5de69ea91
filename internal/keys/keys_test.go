package keys

import "testing"

func TestNeighborhoodPK_HasPrefix(t *testing.T) {
	pk := NeighborhoodPK("abc-123")
	if pk != "NBHD#abc-123" {
		t.Errorf("NeighborhoodPK() = %q, want %q", pk, "NBHD#abc-123")
	}
}

func TestNamePK_Lowercases(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Riverside", "NBHDNAME#riverside"},
		{"riverside", "NBHDNAME#riverside"},
		{"RIVERSIDE", "NBHDNAME#riverside"},
	}
	for _, tt := range tests {
		if got := NamePK(tt.name); got != tt.want {
			t.Errorf("NamePK(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

// 大文字小文字だけが異なる名前は同一の予約キーに衝突すること
func TestNamePK_CaseInsensitiveCollision(t *testing.T) {
	if NamePK("Riverside") != NamePK("riverside") {
		t.Error("expected case-insensitive names to map to the same reservation key")
	}
}

func TestMemberSK_RoundTrip(t *testing.T) {
	sk := MemberSK("did:plc:abc123")
	if !IsMemberSK(sk) {
		t.Fatalf("IsMemberSK(%q) = false, want true", sk)
	}
	if got := UserIDFromMemberSK(sk); got != "did:plc:abc123" {
		t.Errorf("UserIDFromMemberSK(%q) = %q, want %q", sk, got, "did:plc:abc123")
	}
}

func TestIsMemberSK_MetadataRow(t *testing.T) {
	if IsMemberSK(MetadataSK) {
		t.Error("METADATA row must not be classified as a member row")
	}
}

func TestUserIDFromMemberSK_NonMemberRow(t *testing.T) {
	if got := UserIDFromMemberSK(MetadataSK); got != "" {
		t.Errorf("UserIDFromMemberSK(METADATA) = %q, want empty", got)
	}
}

func TestNeighborhoodIDFromPK(t *testing.T) {
	tests := []struct {
		pk   string
		want string
	}{
		{"NBHD#n1", "n1"},
		{"USER#did:plc:x", ""},
		{"NBHDNAME#riverside", ""},
	}
	for _, tt := range tests {
		if got := NeighborhoodIDFromPK(tt.pk); got != tt.want {
			t.Errorf("NeighborhoodIDFromPK(%q) = %q, want %q", tt.pk, got, tt.want)
		}
	}
}

func TestUserPK_And_StatePK(t *testing.T) {
	if got := UserPK("did:plc:x"); got != "USER#did:plc:x" {
		t.Errorf("UserPK() = %q", got)
	}
	if got := StatePK("tok"); got != "STATE#tok" {
		t.Errorf("StatePK() = %q", got)
	}
}
