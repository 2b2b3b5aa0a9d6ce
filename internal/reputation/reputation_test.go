package reputation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestTrustScore(t *testing.T) {
	assert.Equal(t, 50, TrustScore(0, 0))
	assert.Equal(t, 80, TrustScore(3, 0))
	assert.Equal(t, 100, TrustScore(5, 0))
	assert.Equal(t, 100, TrustScore(9, 0))
	assert.Equal(t, 30, TrustScore(0, 2))
	assert.Equal(t, 0, TrustScore(0, 12))
	assert.Equal(t, 50, TrustScore(-4, -1))
}

func TestTrustScore_Monotone(t *testing.T) {
	for links := 0; links < 10; links++ {
		for flags := 0; flags < 15; flags++ {
			s := TrustScore(links, flags)
			assert.GreaterOrEqual(t, s, 0)
			assert.LessOrEqual(t, s, 100)
			assert.GreaterOrEqual(t, TrustScore(links+1, flags), s, "link lowered trust")
			assert.LessOrEqual(t, TrustScore(links, flags+1), s, "flag raised trust")
		}
	}
}

func TestCompose_Unknown(t *testing.T) {
	r := Compose(nil, 0, 0)
	assert.Nil(t, r.Score)
	assert.Equal(t, LabelUnknown, r.Label)
}

func TestCompose_Blend(t *testing.T) {
	r := Compose(intPtr(30), 4, 10)
	require.NotNil(t, r.Score)
	assert.Equal(t, 72, *r.Score) // 0.7*70 + 0.3*75 = 71.5
	assert.Equal(t, LabelGood, r.Label)
	assert.Equal(t, 70.0, *r.SafetyScore)
	assert.Equal(t, 75.0, *r.TxScore)
}

func TestCompose_SingleInput(t *testing.T) {
	r := Compose(intPtr(0), 0, 0)
	assert.Equal(t, 100, *r.Score)
	assert.Equal(t, LabelStrong, r.Label)
	assert.Nil(t, r.TxScore)

	r = Compose(nil, 1, 3)
	assert.Equal(t, 0, *r.Score)
	assert.Equal(t, LabelHighRisk, r.Label)

	// Ratings outside 1..5 are clamped.
	r = Compose(nil, 9, 1)
	assert.Equal(t, 100, *r.Score)

	// An average without any ratings does not count.
	r = Compose(nil, 5, 0)
	assert.Nil(t, r.Score)
}

func TestLabelFor(t *testing.T) {
	tests := []struct {
		score int
		want  Label
	}{
		{100, LabelStrong}, {80, LabelStrong},
		{79, LabelGood}, {60, LabelGood},
		{59, LabelMixed}, {40, LabelMixed},
		{39, LabelCaution}, {20, LabelCaution},
		{19, LabelHighRisk}, {0, LabelHighRisk},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LabelFor(tt.score), "score %d", tt.score)
	}
}

func TestSigner(t *testing.T) {
	assert.Nil(t, NewSigner(""))
	var none *Signer
	sig, err := none.Sign("x")
	assert.NoError(t, err)
	assert.Nil(t, sig)

	s := NewSigner("secret")
	payload := map[string]any{"address": "0xabc", "score": 72}
	sig, err = s.Sign(payload)
	require.NoError(t, err)
	assert.Len(t, sig.Value, 64)
	assert.True(t, s.Verify(payload, sig.Value))
	assert.False(t, s.Verify(map[string]any{"address": "0xabc", "score": 73}, sig.Value))
	assert.False(t, NewSigner("other").Verify(payload, sig.Value))
}
