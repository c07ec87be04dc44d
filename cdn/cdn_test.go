package cdn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleURL(t *testing.T) {
	tests := []struct {
		id   RuleID
		want string
	}{
		{GitHub, "https://github.com/o/r/raw/main/images/2024/03/cat.png"},
		{JsDelivr, "https://cdn.jsdelivr.net/gh/o/r@main/images/2024/03/cat.png"},
		{Statically, "https://cdn.statically.io/gh/o/r/main/images/2024/03/cat.png"},
		{ChinaJsDelivr, "https://jsd.cdn.zzko.cn/gh/o/r@main/images/2024/03/cat.png"},
	}
	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			rule, ok := Lookup(string(tt.id))
			require.True(t, ok)
			assert.Equal(t, tt.want, rule.URL("o", "r", "main", "images/2024/03/cat.png"))
		})
	}
}

func TestLookupNormalizesIDs(t *testing.T) {
	for _, id := range []string{"ChinaJsDelivr", "china_jsdelivr", " CHINA-JSDELIVR "} {
		rule, ok := Lookup(id)
		require.True(t, ok, id)
		assert.Equal(t, ChinaJsDelivr, rule.ID)
	}

	_, ok := Lookup("imgur")
	assert.False(t, ok)
	_, ok = Lookup("")
	assert.False(t, ok)
}

func TestDefaultIsJsDelivr(t *testing.T) {
	assert.Equal(t, JsDelivr, Default().ID)
	assert.Len(t, Rules(), 4)
}
