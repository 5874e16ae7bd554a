package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/snapmark/snapmark/internal/capture"
	"github.com/snapmark/snapmark/internal/capturews"
	"github.com/snapmark/snapmark/internal/config"
	"github.com/snapmark/snapmark/internal/diaglog"
	"github.com/snapmark/snapmark/internal/fileutil"
	"github.com/snapmark/snapmark/internal/ipc"
	"github.com/snapmark/snapmark/internal/notify"
	"github.com/snapmark/snapmark/internal/pidfile"
	"github.com/snapmark/snapmark/internal/session"
	"github.com/snapmark/snapmark/internal/store"
)

const logPrefix = "[snapmark-core]"

var (
	// Version is set at build time via -ldflags "-X main.Version=..."
	Version = "dev"

	outLog *log.Logger
	errLog *log.Logger

	// Context of the active recording, captured at start so stop can name
	// and annotate the artifact.
	currentSource capture.Source
	currentOpts   capture.RecordingOptions

	// Status fields mirrored into status.json on every update.
	lastAction   string
	lastError    string
	lastArtifact string

	quitChan = make(chan struct{}, 1)
)

// daemon bundles the long-lived collaborators so the command handlers do not
// thread five parameters through every call.
type daemon struct {
	cfg      *config.Config
	client   *capturews.Client
	ctrl     *session.Controller
	library  *store.Store
	notifier *notify.Notifier
	diag     *diaglog.Logger
}

func main() {
	// --export-diag: read the debug log, write a support bundle, exit.
	if len(os.Args) > 1 && os.Args[1] == "--export-diag" {
		diaglog.Version = Version
		path, n, err := diaglog.Export(debugLogPath(), ".")
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			if os.IsNotExist(err) {
				fmt.Fprintln(os.Stderr, "hint: no debug log found; run the daemon with SNAPMARK_DEBUG=true first")
				os.Exit(2)
			}
			os.Exit(1)
		}
		fmt.Printf("Exported %d log entries to %s\n", n, path)
		os.Exit(0)
	}

	if err := initLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if r := recover(); r != nil {
			errLog.Printf("[PANIC] snapmark-core crashed: %v", r)
			os.Exit(1)
		}
	}()

	outLog.Println("===========================================")
	outLog.Printf("[STARTUP] SnapMark Core starting (version=%s, pid=%d)", Version, os.Getpid())

	pf, err := pidfile.Acquire(pidfile.DefaultPath("snapmark-core"))
	if err != nil {
		errLog.Printf("[STARTUP] %v", err)
		fmt.Fprintf(os.Stderr, "snapmark-core: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = pf.Release() }()

	cfg, err := config.Load()
	if err != nil {
		errLog.Printf("[STARTUP] Failed to load config: %v", err)
		os.Exit(1)
	}
	outLog.Printf("[STARTUP] Config loaded (engine=%s, output=%s, quality=%s, fps=%d)",
		cfg.EngineURL, cfg.OutputDir, cfg.Quality, cfg.FrameRate)

	diagLogger, diagErr := diaglog.New(debugLogPath())
	if diagErr != nil {
		errLog.Printf("[STARTUP] WARNING: could not open diagnostic log: %v (continuing)", diagErr)
		diagLogger = diaglog.NewNoOp()
	}
	defer func() { _ = diagLogger.Close() }()
	diaglog.Version = Version

	library, err := store.Open(cfg.OutputDir)
	if err != nil {
		errLog.Printf("[STARTUP] Failed to open library at %s: %v", cfg.OutputDir, err)
		os.Exit(1)
	}
	defer func() { _ = library.Close() }()
	outLog.Printf("[STARTUP] Library opened at %s", library.BaseDir())

	outLog.Println("[STARTUP] Connecting to capture engine at " + cfg.EngineURL + "...")
	client := capturews.NewClient(cfg.EngineURL, cfg.EnginePassword)
	client.SetLogger(diagLogger)
	if err := client.Connect(); err != nil {
		errLog.Printf("[STARTUP] Capture engine not reachable: %v (will keep retrying)", err)
	} else {
		outLog.Println("[STARTUP] Connected to capture engine")
	}
	defer client.Disconnect()

	adapter := capturews.NewAdapter(client)
	ctrl := session.New(adapter, adapter,
		session.WithFlushInterval(time.Duration(cfg.FlushIntervalMs)*time.Millisecond))
	ctrl.SetLogger(diagLogger)

	d := &daemon{
		cfg:      cfg,
		client:   client,
		ctrl:     ctrl,
		library:  library,
		notifier: notify.New(diagLogger),
		diag:     diagLogger,
	}

	ctrl.OnStateChanged(func(s session.State) {
		outLog.Printf("[EVENT] Session state changed: %s", s)
		d.writeStatus()
	})
	ctrl.OnDuration(func(time.Duration) { d.writeStatus() })
	ctrl.OnError(func(err error) {
		errLog.Printf("[EVENT] Session error: %v", err)
		lastError = err.Error()
		d.notifier.Send("SnapMark", "Recording failed: "+err.Error())
		d.writeStatus()
	})
	client.OnEncodeError(ctrl.HandleEncoderError)
	client.OnDisconnected(func() {
		errLog.Println("[EVENT] Capture engine disconnected - will attempt reconnection")
		d.writeStatus()
	})

	outLog.Println("[STARTUP] Writing initial status...")
	lastAction = "startup"
	d.writeStatus()

	outLog.Println("[STARTUP] Starting command file watcher...")
	go d.watchCommands()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Heartbeat keeps engine_connected in status.json honest even when no
	// session activity drives updates.
	heartbeat := time.NewTicker(5 * time.Second)
	defer heartbeat.Stop()

	outLog.Println("===========================================")
	outLog.Println("[RUNNING] SnapMark Core is running")

	for {
		select {
		case <-heartbeat.C:
			d.writeStatus()

		case <-quitChan:
			outLog.Println("[SHUTDOWN] Quit command received")
			d.shutdown()
			return

		case <-sigChan:
			outLog.Println("===========================================")
			outLog.Printf("[SHUTDOWN] Received shutdown signal at %s", time.Now().Format(time.RFC3339))
			d.shutdown()
			return
		}
	}
}

// shutdown finalizes any in-flight recording before the deferred cleanup in
// main releases the pidfile and disconnects the client.
func (d *daemon) shutdown() {
	switch d.ctrl.State() {
	case session.StateRecording, session.StatePaused:
		outLog.Println("[SHUTDOWN] Recording is active - stopping before shutdown...")
		d.handleStop()
	}
	lastAction = "shutdown"
	d.writeStatus()
	outLog.Println("[SHUTDOWN] Shutting down gracefully")
	outLog.Println("===========================================")
}

// writeStatus refreshes status.json with the daemon's current view.
func (d *daemon) writeStatus() {
	status := ipc.StatusSnapshot{
		State:           string(d.ctrl.State()),
		SessionID:       d.ctrl.SessionID(),
		SourceID:        currentSource.ID,
		SourceName:      currentSource.DisplayName,
		DurationSeconds: d.ctrl.Duration().Seconds(),
		EngineConnected: d.client.IsConnected(),
		LastAction:      lastAction,
		LastError:       lastError,
		LastArtifact:    lastArtifact,
		Timestamp:       time.Now(),
	}
	if err := ipc.WriteStatus(&status); err != nil {
		errLog.Printf("Failed to write status: %v", err)
	}
}

// handleCommand processes one manual control command from cmd.txt.
func (d *daemon) handleCommand(cmd ipc.Command) {
	outLog.Printf("Received command: %s", cmd)
	lastAction = string(cmd)
	lastError = ""

	switch cmd {
	case ipc.CmdRecord:
		d.handleRecord()
	case ipc.CmdPause:
		d.ctrl.Pause()
	case ipc.CmdResume:
		d.ctrl.Resume()
	case ipc.CmdStop:
		d.handleStop()
	case ipc.CmdCancel:
		d.ctrl.Cancel()
		currentSource = capture.Source{}
		d.notifier.Send("SnapMark", "Recording discarded")
	case ipc.CmdScreenshot:
		d.handleScreenshot()
	case ipc.CmdQuit:
		quitChan <- struct{}{}
	default:
		errLog.Printf("Unknown command: %s", cmd)
	}
	d.writeStatus()
}

// handleRecord starts a session against the primary screen using the
// configured quality settings.
func (d *daemon) handleRecord() {
	source, err := d.client.PrimaryScreen()
	if err != nil {
		errLog.Printf("Failed to resolve primary screen: %v", err)
		lastError = err.Error()
		d.notifier.Send("SnapMark", "Cannot start recording: "+err.Error())
		return
	}

	opts := capture.RecordingOptions{
		SourceID:           source.ID,
		IncludeSystemAudio: d.cfg.IncludeSystemAudio,
		IncludeMicrophone:  d.cfg.IncludeMicrophone,
		Quality:            capture.QualityPreset(d.cfg.Quality),
		FrameRate:          d.cfg.FrameRate,
	}

	if err := d.ctrl.Start(context.Background(), opts); err != nil {
		errLog.Printf("Failed to start recording: %v", err)
		lastError = err.Error()
		d.notifier.Send("SnapMark", "Cannot start recording: "+err.Error())
		return
	}

	currentSource = *source
	currentOpts = opts
	outLog.Printf("Recording started (session=%s, source=%q)", d.ctrl.SessionID(), source.DisplayName)
	d.notifier.Send("SnapMark", "Recording started: "+source.DisplayName)
}

// handleStop finalizes the active session, writes the recording plus its
// metadata sidecar into the library, and notifies the user.
func (d *daemon) handleStop() {
	source := currentSource
	opts := currentOpts

	result, err := d.ctrl.Stop(context.Background())
	if err != nil {
		errLog.Printf("Failed to stop recording: %v", err)
		lastError = err.Error()
		d.notifier.Send("SnapMark", "Failed to save recording: "+err.Error())
		return
	}
	currentSource = capture.Source{}

	name := fileutil.ArtifactBasename(source.DisplayName, result.StartedAt) + ".webm"
	artifact, err := d.library.WriteArtifact(context.Background(), result.Blob, name, "Recordings", store.KindRecording)
	if err != nil {
		errLog.Printf("Failed to save recording %s: %v", name, err)
		lastError = err.Error()
		d.notifier.Send("SnapMark", "Failed to save recording: "+err.Error())
		return
	}

	stoppedAt := result.StartedAt.Add(result.Duration)
	meta := &fileutil.RecordingMetadata{
		Version:    Version,
		SessionID:  result.SessionID,
		StartedAt:  result.StartedAt,
		StoppedAt:  stoppedAt,
		Duration:   result.Duration.String(),
		DurationMs: result.Duration.Milliseconds(),
		SourceID:   source.ID,
		SourceName: source.DisplayName,
		Quality:    string(opts.Quality),
		FrameRate:  opts.FrameRate,
		OutputFile: artifact.Path,
	}
	if err := fileutil.WriteMetadata(artifact.Path, meta); err != nil {
		errLog.Printf("Failed to write metadata for %s: %v", artifact.Path, err)
	}

	lastArtifact = artifact.Path
	outLog.Printf("Recording saved: %s (%s, %d bytes)", artifact.Path, result.Duration, artifact.SizeBytes)
	d.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCore,
		Event:     diaglog.EventArtifactWritten,
		SessionID: result.SessionID,
		Payload: map[string]interface{}{
			"path": artifact.Path,
			"kind": artifact.Kind,
			"size": artifact.SizeBytes,
		},
	})
	d.notifier.Send("SnapMark", "Recording saved: "+artifact.Name)
}

// handleScreenshot captures a still of the primary screen into the library.
func (d *daemon) handleScreenshot() {
	source, err := d.client.PrimaryScreen()
	if err != nil {
		errLog.Printf("Failed to resolve primary screen: %v", err)
		lastError = err.Error()
		d.notifier.Send("SnapMark", "Screenshot failed: "+err.Error())
		return
	}

	png, err := d.client.CaptureStill(source.ID)
	if err != nil {
		errLog.Printf("Failed to capture screenshot: %v", err)
		lastError = err.Error()
		d.notifier.Send("SnapMark", "Screenshot failed: "+err.Error())
		return
	}

	name := fileutil.ArtifactBasename(source.DisplayName, time.Now()) + ".png"
	artifact, err := d.library.WriteArtifact(context.Background(), png, name, "Screenshots", store.KindScreenshot)
	if err != nil {
		errLog.Printf("Failed to save screenshot %s: %v", name, err)
		lastError = err.Error()
		d.notifier.Send("SnapMark", "Screenshot failed: "+err.Error())
		return
	}

	lastArtifact = artifact.Path
	outLog.Printf("Screenshot saved: %s (%d bytes)", artifact.Path, artifact.SizeBytes)
	d.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCore,
		Event:     diaglog.EventScreenshot,
		Payload:   map[string]interface{}{"path": artifact.Path, "source_id": source.ID},
	})
	d.notifier.Send("SnapMark", "Screenshot saved: "+artifact.Name)
}

// watchCommands monitors cmd.txt for manual control commands.
func (d *daemon) watchCommands() {
	cmdPath := ipc.CommandPath()
	cmdDir := filepath.Dir(cmdPath)

	if err := os.MkdirAll(cmdDir, 0755); err != nil {
		errLog.Printf("Failed to create command directory: %v", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errLog.Printf("fsnotify not available, falling back to polling: %v", err)
		d.watchCommandsWithPolling(cmdPath)
		return
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			errLog.Printf("Failed to close watcher: %v", err)
		}
	}()

	if err := watcher.Add(cmdDir); err != nil {
		errLog.Printf("Failed to watch command directory, falling back to polling: %v", err)
		d.watchCommandsWithPolling(cmdPath)
		return
	}

	outLog.Println("Command watcher started (using fsnotify)")

	// Fallback polling ticker in case fsnotify misses events.
	pollTicker := time.NewTicker(1 * time.Second)
	defer pollTicker.Stop()

	lastCheckTime := time.Now()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				outLog.Println("fsnotify watcher closed, switching to polling")
				d.watchCommandsWithPolling(cmdPath)
				return
			}

			if event.Name == cmdPath && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
				// Small delay to ensure write is complete
				time.Sleep(50 * time.Millisecond)

				cmd, err := ipc.ReadCommand()
				if err != nil || cmd == "" {
					continue
				}

				d.handleCommand(cmd)
				lastCheckTime = time.Now()
			}

		case <-pollTicker.C:
			if fileInfo, err := os.Stat(cmdPath); err == nil {
				if fileInfo.ModTime().After(lastCheckTime) {
					time.Sleep(50 * time.Millisecond)

					cmd, err := ipc.ReadCommand()
					if err == nil && cmd != "" {
						d.handleCommand(cmd)
						lastCheckTime = time.Now()
					}
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				outLog.Println("fsnotify error channel closed, switching to polling")
				d.watchCommandsWithPolling(cmdPath)
				return
			}
			errLog.Printf("File watcher error: %v", err)
		}
	}
}

// watchCommandsWithPolling is a pure polling-based fallback for command
// monitoring.
func (d *daemon) watchCommandsWithPolling(cmdPath string) {
	outLog.Println("Command watcher started (using polling fallback, 1s interval)")

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	lastCheckTime := time.Now()

	for range ticker.C {
		fileInfo, err := os.Stat(cmdPath)
		if err != nil {
			continue // File doesn't exist yet, keep polling
		}

		if fileInfo.ModTime().After(lastCheckTime) {
			time.Sleep(50 * time.Millisecond)

			cmd, err := ipc.ReadCommand()
			if err == nil && cmd != "" {
				d.handleCommand(cmd)
			}
			lastCheckTime = time.Now()
		}
	}
}

// debugLogPath resolves where the NDJSON diagnostic log lives.
func debugLogPath() string {
	if p := os.Getenv("SNAPMARK_LOG_PATH"); p != "" {
		return p
	}
	return filepath.Join(ipc.CacheDir(), "snapmark-debug.ndjson")
}

// initLogging sets up log files with rotation support.
func initLogging() error {
	logDir := ipc.CacheDir()
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}

	outLogPath := filepath.Join(logDir, "snapmark-core.out.log")
	errLogPath := filepath.Join(logDir, "snapmark-core.err.log")

	if err := rotateLogIfNeeded(outLogPath, 10*1024*1024); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate out log: %v\n", err)
	}
	if err := rotateLogIfNeeded(errLogPath, 10*1024*1024); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate err log: %v\n", err)
	}

	outFile, err := os.OpenFile(outLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	errFile, err := os.OpenFile(errLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	outLog = log.New(outFile, logPrefix+" ", log.LstdFlags)
	errLog = log.New(errFile, logPrefix+" ERROR: ", log.LstdFlags)

	return nil
}

// rotateLogIfNeeded rotates a log file if it exceeds maxSize bytes.
func rotateLogIfNeeded(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if info.Size() < maxSize {
		return nil
	}

	oldPath := logPath + ".old"
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old log: %w", err)
	}

	return os.Rename(logPath, oldPath)
}
