package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCorrectorChainAcceptsFirstRealCorrection(t *testing.T) {
	lora := &fakeLLM{responses: []string{"Mein Tag war super entspannt, ich war lange am See. Und wie war deiner?"}}
	chain := NewCorrectorChain([]CorrectorBackend{{Name: "lora", Client: lora}}, 0.40, time.Second, 200, nil)

	draft := "Mein Tag war super entspannt, ich war lange am See."
	text, used := chain.Run(context.Background(), CorrectionInput{Message: "Wie war dein Tag", Draft: draft})

	assert.Equal(t, "lora", used)
	assert.NotEqual(t, draft, text)
	assert.Contains(t, text, "?")
}

func TestCorrectorChainNearIdenticalOutputNotReportedAsUsed(t *testing.T) {
	draft := "Ich freue mich schon auf morgen. Was hast du geplant?"
	// Same text modulo case and whitespace.
	echo := &fakeLLM{responses: []string{"  ich freue mich schon   auf morgen. was hast du geplant?  "}}
	chain := NewCorrectorChain([]CorrectorBackend{{Name: "openai", Client: echo}}, 0.40, time.Second, 200, nil)

	text, used := chain.Run(context.Background(), CorrectionInput{Draft: draft})

	assert.Equal(t, draft, text)
	assert.Empty(t, used)
}

func TestCorrectorChainRejectsTruncatedOutput(t *testing.T) {
	draft := "Das ist ein ziemlich langer Entwurf mit viel Inhalt, der erhalten bleiben soll, sonst geht der Gesprächsfaden verloren."
	truncator := &fakeLLM{responses: []string{"Ok?"}}
	chain := NewCorrectorChain([]CorrectorBackend{{Name: "lora", Client: truncator}}, 0.40, time.Second, 200, nil)

	text, used := chain.Run(context.Background(), CorrectionInput{Draft: draft})

	assert.Equal(t, draft, text)
	assert.Empty(t, used)
}

func TestCorrectorChainFallsThroughOnFailure(t *testing.T) {
	failing := &fakeLLM{err: errors.New("backend down")}
	working := &fakeLLM{responses: []string{"Korrigierte Fassung mit einer neuen Schlussfrage, oder?"}}
	chain := NewCorrectorChain([]CorrectorBackend{
		{Name: "lora", Client: failing},
		{Name: "openai", Client: working},
	}, 0.40, time.Second, 200, nil)

	text, used := chain.Run(context.Background(), CorrectionInput{Draft: "Erster Entwurf ohne Frage am Ende, leider."})

	assert.Equal(t, "openai", used)
	assert.Contains(t, text, "Schlussfrage")
}

func TestCorrectorChainSkipsNilClients(t *testing.T) {
	working := &fakeLLM{responses: []string{"Eine richtige Korrektur des Entwurfs, einverstanden?"}}
	chain := NewCorrectorChain([]CorrectorBackend{
		{Name: "lora", Client: nil},
		{Name: "gemini", Client: working},
	}, 0.40, time.Second, 200, nil)

	_, used := chain.Run(context.Background(), CorrectionInput{Draft: "Ein Entwurf, der korrigiert werden will."})

	assert.Equal(t, "gemini", used)
	assert.Equal(t, 1, working.callCount())
}

func TestCorrectorChainTimeoutFallsThrough(t *testing.T) {
	slow := &fakeLLM{responses: []string{"zu spät"}, delay: 200 * time.Millisecond}
	fast := &fakeLLM{responses: []string{"Schnelle Korrektur mit Frage am Ende, was meinst du?"}}
	chain := NewCorrectorChain([]CorrectorBackend{
		{Name: "lora", Client: slow},
		{Name: "openai", Client: fast},
	}, 0.40, 20*time.Millisecond, 200, nil)

	_, used := chain.Run(context.Background(), CorrectionInput{Draft: "Ein Entwurf, der korrigiert werden will."})

	assert.Equal(t, "openai", used)
}

func TestCorrectorChainEmptyChainPassesDraftThrough(t *testing.T) {
	chain := NewCorrectorChain(nil, 0.40, time.Second, 200, nil)
	text, used := chain.Run(context.Background(), CorrectionInput{Draft: "Unverändert."})
	assert.Equal(t, "Unverändert.", text)
	assert.Empty(t, used)
}
