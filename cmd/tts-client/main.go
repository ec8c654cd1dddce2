// main package for tts-client, a command-line client for the tts-panel HTTP
// surface: it synthesizes one text and saves the resulting WAV locally.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// Flag descriptions.
const (
	flagServerDesc = "Base URL of the tts-panel service"
	flagTextDesc   = "Text to convert to speech"
	flagVoiceDesc  = "Voice identifier"
	flagSpeedDesc  = "Speech speed multiplier"
	flagMethodDesc = "Execution method: auto, mlir_npu, vitisai or cpu"
	flagOutputDesc = "Output file path (.wav)"
	flagStatusDesc = "Print service status and exit"
)

// Defaults.
const (
	defaultServer     = "http://127.0.0.1:5000"
	defaultOutputFile = "output.wav"
	requestTimeout    = 120 * time.Second
)

var errTextRequired = errors.New("--text must be provided")

type appFlags struct {
	server string
	text   string
	voice  string
	speed  float64
	method string
	output string
	status bool
}

type synthesizeResponse struct {
	Success  bool   `json:"success"`
	AudioURL string `json:"audio_url"`
	Degraded bool   `json:"degraded"`
	Error    string `json:"error"`
	Metrics  struct {
		GenerationTime string `json:"generation_time"`
		AudioLength    string `json:"audio_length"`
		RTF            string `json:"rtf"`
		MethodUsed     string `json:"method_used"`
	} `json:"metrics"`
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	client := &http.Client{Timeout: requestTimeout}

	if flags.status {
		return printStatus(client, flags.server)
	}

	if flags.text == "" {
		return errTextRequired
	}

	return synthesize(client, flags)
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.server, "server", defaultServer, flagServerDesc)
	flag.StringVar(&flags.text, "text", "", flagTextDesc)
	flag.StringVar(&flags.voice, "voice", "", flagVoiceDesc)
	flag.Float64Var(&flags.speed, "speed", 0, flagSpeedDesc)
	flag.StringVar(&flags.method, "method", "", flagMethodDesc)
	flag.StringVar(&flags.output, "output", defaultOutputFile, flagOutputDesc)
	flag.BoolVar(&flags.status, "status", false, flagStatusDesc)
	flag.Parse()

	return flags
}

func printStatus(client *http.Client, server string) error {
	resp, err := client.Get(server + "/status")
	if err != nil {
		return fmt.Errorf("failed to reach service: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}

	fmt.Println(string(body))

	return nil
}

func synthesize(client *http.Client, flags appFlags) error {
	payload, err := json.Marshal(map[string]any{
		"text":   flags.text,
		"voice":  flags.voice,
		"speed":  flags.speed,
		"method": flags.method,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.Post(
		flags.server+"/synthesize", "application/json", bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to reach service: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	var result synthesizeResponse

	err = json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !result.Success {
		return fmt.Errorf("synthesis failed (%d): %s", resp.StatusCode, result.Error)
	}

	err = download(client, flags.server+result.AudioURL, flags.output)
	if err != nil {
		return err
	}

	fmt.Printf(
		"Generated: %s (method %s, rtf %s, %ss of audio)\n",
		flags.output, result.Metrics.MethodUsed, result.Metrics.RTF, result.Metrics.AudioLength,
	)

	if result.Degraded {
		fmt.Println("Note: the requested method was unavailable; CPU was used instead")
	}

	return nil
}

func download(client *http.Client, url, output string) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to download audio: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("audio download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read audio: %w", err)
	}

	err = os.WriteFile(output, data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	return nil
}
