package quota

import (
	"testing"

	"github.com/taskhive/taskhive-backend/pkg/enums"
)

func TestCanCreate_PremiumUnlimited(t *testing.T) {
	for _, count := range []int64{0, 5, 10_000} {
		if !CanCreate(enums.SubscriptionTierPremium, count, 5) {
			t.Fatalf("premium should always be allowed, count=%d", count)
		}
	}
}

func TestCanCreate_FreeBoundedByLimit(t *testing.T) {
	cases := []struct {
		count int64
		limit int
		want  bool
	}{
		{0, 5, true},
		{4, 5, true},
		{5, 5, false},
		{6, 5, false},
		{0, 0, false},
	}
	for _, tc := range cases {
		if got := CanCreate(enums.SubscriptionTierFree, tc.count, tc.limit); got != tc.want {
			t.Fatalf("free count=%d limit=%d: got %t want %t", tc.count, tc.limit, got, tc.want)
		}
	}
}

func TestCanCreate_UnknownTierFailsOpen(t *testing.T) {
	if !CanCreate(enums.SubscriptionTier("enterprise"), 100, 5) {
		t.Fatalf("unknown tier should be allowed")
	}
}
