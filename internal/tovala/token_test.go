package tovala

import "testing"

func TestUserIDFromToken(t *testing.T) {
	tests := []struct {
		name    string
		claims  map[string]any
		want    int64
		wantErr bool
	}{
		{"numeric claim", map[string]any{"userId": 42}, 42, false},
		{"string claim", map[string]any{"userId": "314"}, 314, false},
		{"snake case claim", map[string]any{"user_id": 5}, 5, false},
		{"missing claim", map[string]any{"sub": "x"}, 0, true},
		{"unparseable string", map[string]any{"userId": "abc"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UserIDFromToken(testToken(t, tt.claims))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("user id = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestUserIDFromMalformedToken(t *testing.T) {
	// Fewer than three dot-separated segments must degrade to an error, not
	// a panic, so login can proceed with the user id unset.
	for _, tok := range []string{"", "justonechunk", "two.chunks", "not base64 at all"} {
		if _, err := UserIDFromToken(tok); err == nil {
			t.Errorf("UserIDFromToken(%q) = nil error, want error", tok)
		}
	}
}
