package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hallo wie geht es dir", Normalize("  Hallo   wie GEHT es\tdir "))
	assert.Equal(t, "", Normalize("   "))
}

func TestNearDuplicate(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{
			name: "identical",
			a:    "Wie war dein Tag heute?",
			b:    "Wie war dein Tag heute?",
			want: true,
		},
		{
			name: "identical modulo case and whitespace",
			a:    "Wie war dein Tag heute?",
			b:    "  wie war DEIN Tag   heute?",
			want: true,
		},
		{
			name: "one word swapped in a long message",
			a:    "Mein Tag war richtig schön, ich war lange draußen im Park spazieren und habe die Sonne genossen, was hast du heute gemacht?",
			b:    "Mein Tag war richtig schön, ich war lange draußen im Park spazieren und habe die Sonne genossen, was hast du gestern gemacht?",
			want: true,
		},
		{
			name: "same words reordered",
			a:    "heute war mein Tag richtig schön und lang gewesen, ehrlich gesagt sehr entspannt",
			b:    "mein Tag war heute richtig lang und schön gewesen, sehr entspannt ehrlich gesagt",
			want: true,
		},
		{
			name: "less than half the words shared",
			a:    "Mein Tag war richtig schön, ich war lange draußen unterwegs",
			b:    "Morgen fahre ich ans Meer und freue mich total darauf",
			want: false,
		},
		{
			name: "same topic different phrasing",
			a:    "Wie war dein Tag heute, erzähl mal?",
			b:    "Heute war mein Tag ziemlich stressig auf der Arbeit, bei dir auch?",
			want: false,
		},
		{
			name: "empty against anything",
			a:    "",
			b:    "Hallo du",
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NearDuplicate(tt.a, tt.b, DefaultThresholds()))
		})
	}
}

func TestJaccardBounds(t *testing.T) {
	a := toSet([]string{"eins", "zwei", "drei"})
	assert.InDelta(t, 1.0, jaccard(a, a), 1e-9)
	assert.Zero(t, jaccard(a, toSet(nil)))
	assert.InDelta(t, 1.0/3.0, jaccard(toSet([]string{"a", "b"}), toSet([]string{"a", "c"})), 1e-9)
}
