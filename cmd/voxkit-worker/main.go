// voxkit-worker is the production worker binary. It serves the default
// voice assistant with barge-in enabled and picks the LLM provider from
// the environment (VOXKIT_LLM_PROVIDER=openai|gemini).
package main

import (
	"fmt"
	"os"

	"github.com/voxkit-labs/voxkit-ai/src/agent"
	"github.com/voxkit-labs/voxkit-ai/src/interruptions"
	"github.com/voxkit-labs/voxkit-ai/src/services"
	"github.com/voxkit-labs/voxkit-ai/src/services/cartesia"
	"github.com/voxkit-labs/voxkit-ai/src/services/deepgram"
	"github.com/voxkit-labs/voxkit-ai/src/services/gemini"
	"github.com/voxkit-labs/voxkit-ai/src/services/openai"
	"github.com/voxkit-labs/voxkit-ai/src/worker"
)

const instructions = "You are a helpful voice assistant. Keep responses concise."

func newLLM() (services.LLMService, error) {
	switch provider := os.Getenv("VOXKIT_LLM_PROVIDER"); provider {
	case "", "openai":
		return openai.NewLLMService(openai.LLMConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  "gpt-4o-mini",
		}), nil
	case "gemini":
		return gemini.NewLLMService(gemini.LLMConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

func entrypoint(ctx *worker.JobContext) error {
	if err := ctx.Connect(ctx.Context()); err != nil {
		return err
	}
	rm, err := ctx.Room()
	if err != nil {
		return err
	}

	llm, err := newLLM()
	if err != nil {
		return err
	}

	assistant := agent.New(agent.Options{Instructions: instructions})

	session, err := agent.NewSession(agent.SessionOptions{
		STT: deepgram.NewSTTService(deepgram.STTConfig{
			APIKey: os.Getenv("DEEPGRAM_API_KEY"),
		}),
		LLM: llm,
		TTS: cartesia.NewTTSService(cartesia.TTSConfig{
			APIKey:  os.Getenv("CARTESIA_API_KEY"),
			VoiceID: os.Getenv("CARTESIA_VOICE_ID"),
		}),
		AllowInterruptions: true,
		InterruptionStrategies: []interruptions.InterruptionStrategy{
			interruptions.NewMinWordsInterruptionStrategy(2),
		},
	})
	if err != nil {
		return err
	}

	if err := session.Start(ctx.Context(), assistant, rm); err != nil {
		return err
	}

	if err := session.Say("Hello! How can I help you today?"); err != nil {
		return err
	}

	<-ctx.Context().Done()
	return session.Close()
}

func main() {
	worker.RunCLI(entrypoint)
}
