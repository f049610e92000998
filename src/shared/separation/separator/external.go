package separator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/lib/executor"
	"github.com/stemforge/stemforge-be/src/shared/lib/working_dir"
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/seperrors"
)

const DefaultExternalTimeout = 10 * time.Minute

// ExternalSeparator shells out to a neural separation binary (demucs or
// compatible). The mix goes to disk as WAV, the binary populates an
// output directory with one WAV per stem, and the file names become the
// stem names. The context deadline kills the process outright, there is
// no graceful drain for a runaway model.
type ExternalSeparator struct {
	binPath    string
	workingDir working_dir.WorkingDir
	executor   executor.Executor
	timeout    time.Duration
}

var _ Separator = ExternalSeparator{}

func NewExternalSeparator(binPath string, workingDirStr string, exec executor.Executor, timeout time.Duration) (ExternalSeparator, error) {
	workingDir, err := working_dir.NewWorkingDir(workingDirStr)
	if err != nil {
		return ExternalSeparator{}, cerr.Wrap(err).Error("Failed to set up the separation working dir")
	}

	if timeout <= 0 {
		timeout = DefaultExternalTimeout
	}

	return ExternalSeparator{
		binPath:    binPath,
		workingDir: workingDir,
		executor:   exec,
		timeout:    timeout,
	}, nil
}

func (e ExternalSeparator) Name() string {
	return "neural_external"
}

func (e ExternalSeparator) Available() bool {
	if e.binPath == "" {
		return false
	}

	info, err := os.Stat(e.binPath)
	return err == nil && !info.IsDir()
}

func (e ExternalSeparator) TrySeparate(ctx context.Context, buffer audio.Buffer, nComponents int) (map[string]audio.Buffer, error) {
	if !e.Available() {
		return nil, cerr.Field("bin_path", e.binPath).
			Wrap(seperrors.AlgorithmUnavailable).
			Error("Separation binary is not present")
	}

	jobDir, err := e.workingDir.TempDir("separation-*")
	if err != nil {
		return nil, cerr.Wrap(err).Mark(seperrors.AlgorithmFailure).
			Error("Failed to create a scratch dir for the job")
	}
	defer func() {
		if err := os.RemoveAll(jobDir); err != nil {
			log.WithError(err).WithField("dir", jobDir).
				Warn("Failed to clean up the job scratch dir")
		}
	}()

	sourcePath := filepath.Join(jobDir, "input.wav")
	outputDir := filepath.Join(jobDir, "stems")
	if err := os.MkdirAll(outputDir, os.ModePerm); err != nil {
		return nil, cerr.Field("output_dir", outputDir).
			Wrap(err).Mark(seperrors.AlgorithmFailure).
			Error("Failed to create the stems output dir")
	}

	if err := e.writeSource(sourcePath, buffer); err != nil {
		return nil, err
	}

	// the process is a lengthy one, if we want to halt now is the time
	if ctx.Err() != nil {
		return nil, cerr.Wrap(ctx.Err()).Mark(seperrors.AlgorithmFailure).
			Error("Context cancelled before separation could happen")
	}

	if err := e.run(ctx, sourcePath, outputDir); err != nil {
		return nil, err
	}

	return e.collectStems(outputDir, buffer.SampleRate())
}

func (e ExternalSeparator) writeSource(path string, buffer audio.Buffer) error {
	file, err := os.Create(path)
	if err != nil {
		return cerr.Field("path", path).Wrap(err).
			Mark(seperrors.AlgorithmFailure).
			Error("Failed to create the source file")
	}
	defer file.Close()

	if err := audio.EncodeWAV(file, buffer); err != nil {
		return cerr.Field("path", path).Wrap(err).
			Mark(seperrors.AlgorithmFailure).
			Error("Failed to write the source file")
	}

	return nil
}

func (e ExternalSeparator) run(ctx context.Context, sourcePath string, outputDir string) error {
	logger := log.WithFields(log.Fields{
		"sourcePath": sourcePath,
		"outputDir":  outputDir,
		"binPath":    e.binPath,
	})

	logger.Info("Running separation command")

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := []string{"-o", outputDir, "-d", "cpu", "--filename", "{stem}.{ext}", sourcePath}

	errctx := cerr.Field("bin_path", e.binPath).Field("args", args)

	cmd := e.executor.Command(runCtx, e.binPath, args...)
	cmd.SetDir(e.workingDir.Root())

	output, err := cmd.CombinedOutput()
	if err != nil {
		return errctx.Field("command_output", string(output)).
			Wrap(err).Mark(seperrors.AlgorithmFailure).
			Error(fmt.Sprintf("Error occurred while running the separation binary: %s", string(output)))
	}

	logger.Debug(string(output))
	logger.Info("Finished separation command")

	return nil
}

func (e ExternalSeparator) collectStems(dir string, sampleRate int) (map[string]audio.Buffer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, cerr.Field("dir", dir).Wrap(err).
			Mark(seperrors.AlgorithmFailure).
			Error("Error reading the stems output directory")
	}

	stems := map[string]audio.Buffer{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.EqualFold(filepath.Ext(name), ".wav") {
			continue
		}

		path := filepath.Join(dir, name)
		stem, err := e.readStem(path)
		if err != nil {
			return nil, err
		}

		stemName := strings.TrimSuffix(name, filepath.Ext(name))
		stems[stemName] = stem
	}

	if len(stems) == 0 {
		return nil, cerr.Field("dir", dir).
			Wrap(seperrors.AlgorithmFailure).
			Error("The separation binary produced no stems")
	}

	return stems, nil
}

func (e ExternalSeparator) readStem(path string) (audio.Buffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return audio.Buffer{}, cerr.Field("path", path).Wrap(err).
			Mark(seperrors.AlgorithmFailure).
			Error("Failed to open a stem file")
	}
	defer file.Close()

	stem, err := audio.DecodeWAV(file)
	if err != nil {
		return audio.Buffer{}, cerr.Field("path", path).Wrap(err).
			Mark(seperrors.AlgorithmFailure).
			Error("Failed to decode a stem file")
	}

	return stem, nil
}
