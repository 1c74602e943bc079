// Command tasrun is a minimal host loop around the runtime package,
// demonstrating the PreTick/PreInput embedding contract spec.md §2
// describes. A real host (the actual game) owns the tick loop and its own
// key_state buffer; this binary exists to exercise the wiring end to end
// from the command line: play back a script project (-script) or start a
// recording (-record-out). It has no option to play back a .tas record file.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/lixenwraith/tasrun/core"
	"github.com/lixenwraith/tasrun/runtime"
	"github.com/lixenwraith/tasrun/tasfsm"
)

const (
	logDir      = "logs"
	logFileName = "tasrun.log"
	maxLogSize  = 10 * 1024 * 1024 // 10MB
)

// setupLogging configures log output based on debug flag; otherwise all
// logging is discarded so a recording run produces no incidental stdout.
func setupLogging(debug bool) *os.File {
	if !debug {
		log.SetOutput(io.Discard)
		return nil
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create logs directory: %v\n", err)
		log.SetOutput(io.Discard)
		return nil
	}

	logPath := filepath.Join(logDir, logFileName)
	if info, err := os.Stat(logPath); err == nil && info.Size() > maxLogSize {
		timestamp := time.Now().Format("2006-01-02-15-04-05")
		rotated := filepath.Join(logDir, fmt.Sprintf("tasrun-%s.log", timestamp))
		if err := os.Rename(logPath, rotated); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to rotate log file: %v\n", err)
		}
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to open log file: %v\n", err)
		log.SetOutput(io.Discard)
		return nil
	}

	log.SetOutput(logFile)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Printf("=== tasrun started ===")
	return logFile
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging to file")
	configPath := flag.String("config", "", "path to a TOML config file (optional)")
	scriptPath := flag.String("script", "", "path to a script project directory or .zip archive to play back")
	level := flag.String("level", "default", "level name to attach the script context to")
	recordOut := flag.String("record-out", "", "if set, record input for recordTicks ticks and write a .tas file here")
	recordTicks := flag.Int("record-ticks", 0, "number of ticks to record before stopping (with -record-out)")
	flag.Parse()

	logFile := setupLogging(*debug)
	if logFile != nil {
		defer logFile.Close()
	}

	cfg := runtime.DefaultConfig()
	if *configPath != "" {
		loaded, err := runtime.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	c, err := runtime.NewCore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize runtime: %v\n", err)
		os.Exit(1)
	}

	keyState := make([]byte, 256)

	switch {
	case *scriptPath != "":
		runScriptPlayback(c, *scriptPath, *level, keyState)
	case *recordOut != "":
		runRecording(c, *recordOut, *recordTicks, keyState)
	default:
		fmt.Fprintln(os.Stderr, "nothing to do: pass -script or -record-out")
		os.Exit(2)
	}
}

func runScriptPlayback(c *runtime.Core, path, level string, keyState []byte) {
	done := make(chan struct{})
	core.Go(func() {
		defer close(done)
		c.PlayScript(path, level)
		if err := c.FSM.Fire(0, tasfsm.StartScriptPlayback); err != nil {
			log.Printf("tasrun: failed to start script playback: %v", err)
			return
		}
		for c.FSM.State() == tasfsm.PlayingScript {
			c.PreTick(16)
			c.PreInput(keyState)
			time.Sleep(16 * time.Millisecond)
		}
	})
	<-done
}

func runRecording(c *runtime.Core, outPath string, ticks int, keyState []byte) {
	if err := c.FSM.Fire(0, tasfsm.StartRecording); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start recording: %v\n", err)
		os.Exit(1)
	}
	for i := 0; i < ticks; i++ {
		c.PreTick(16)
		c.PreInput(keyState)
	}
	if err := c.FSM.Fire(uint64(ticks), tasfsm.Stop); err != nil {
		fmt.Fprintf(os.Stderr, "failed to stop recording: %v\n", err)
		os.Exit(1)
	}

	data, _, _, err := c.StopRecordingAndEncode(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode recording: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d bytes to %s\n", len(data), outPath)
}
