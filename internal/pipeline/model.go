package pipeline

import (
	"path/filepath"
	"sort"

	"github.com/murmurhq/murmur/internal/errors"
	"github.com/murmurhq/murmur/internal/transcriber"
)

// LoadModel constructs a Transcriber from modelPath, warms it up with 1s of
// synthetic silence to force GPU kernel compilation / memory pinning, and
// swaps it in atomically. The previous Transcriber, if any, is closed after
// the swap so an in-flight call on it is not disturbed.
func (p *Pipeline) LoadModel(modelPath string, settings transcriber.Settings) error {
	backend, err := transcriber.LoadWhisper(modelPath)
	if err != nil {
		return err
	}

	asr := transcriber.New(backend, filepath.Base(modelPath), settings)
	if err := asr.Warmup(); err != nil {
		backend.Close()
		return err
	}

	p.transcriberMu.Lock()
	old := p.asr
	p.asr = asr
	p.transcriberMu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// LoadFirstAvailable loads the lexicographically first *.bin model found in
// modelDir. Model discovery proper (download, catalog, UI) is out of scope;
// this is the minimal mechanism the Pipeline needs to have *a* model to
// warm up.
func (p *Pipeline) LoadFirstAvailable(modelDir string, settings transcriber.Settings) error {
	matches, globErr := filepath.Glob(filepath.Join(modelDir, "*.bin"))
	if globErr != nil || len(matches) == 0 {
		return errors.New(errors.ModelLoadFailed, "no model files found in "+modelDir)
	}
	sort.Strings(matches)
	return p.LoadModel(matches[0], settings)
}

// CurrentModelName reports the loaded model's name, or "" if none is
// loaded.
func (p *Pipeline) CurrentModelName() string {
	p.transcriberMu.Lock()
	defer p.transcriberMu.Unlock()
	if p.asr == nil {
		return ""
	}
	return p.asr.ModelName()
}

// Shutdown stops the monitor (if running), releases the capture device,
// and drops the Transcriber. Waits for any in-flight transcribe via the
// Transcriber mutex before returning.
func (p *Pipeline) Shutdown() {
	if p.monitorStop != nil {
		close(p.monitorStop)
		<-p.monitorDone
		p.monitorStop = nil
		p.monitorDone = nil
	}

	p.capture.Release()

	p.transcriberMu.Lock()
	defer p.transcriberMu.Unlock()
	if p.asr != nil {
		p.asr.Close()
		p.asr = nil
	}
}
