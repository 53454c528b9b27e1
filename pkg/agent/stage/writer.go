package stage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// blockWriter records the memory blocks of one stage run. Every block is tagged
// with the run ID and a write key derived from the stage, block type, scope and
// content, so a retried attempt of the same run reuses blocks an earlier attempt
// stored instead of writing them again.
type blockWriter struct {
	memory interfaces.MemoryStore
	stage  types.Stage
	input  *model.StageInput

	mu      sync.Mutex
	stored  map[string]*model.MemoryBlock
	written map[string]*model.MemoryBlock
	seen    map[string]int
}

// newBlockWriter loads the blocks earlier attempts of the run left in the session
func newBlockWriter(ctx context.Context, env interfaces.StageEnv, stage types.Stage, input *model.StageInput) (*blockWriter, error) {
	blocks, err := env.Memory.ListBySession(ctx, input.SessionID, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load session memory", goerr.V(model.SessionIDKey, input.SessionID))
	}

	w := &blockWriter{
		memory:  env.Memory,
		stage:   stage,
		input:   input,
		stored:  make(map[string]*model.MemoryBlock),
		written: make(map[string]*model.MemoryBlock),
		seen:    make(map[string]int),
	}
	for _, b := range blocks {
		if b.Metadata.String(model.MetaRunID) != string(input.RunID) {
			continue
		}
		if key := b.Metadata.String(model.MetaWriteKey); key != "" {
			w.stored[key] = b
		}
	}
	return w, nil
}

// create stores a block, or returns the block an earlier attempt stored for the
// same item. scope separates identical content produced for different sources,
// such as two documents. Repeated content within one attempt gets its own block.
func (w *blockWriter) create(ctx context.Context, scope string, blockType types.BlockType, content string, md model.Metadata) (*model.MemoryBlock, error) {
	sum := sha256.Sum256([]byte(content))
	base := fmt.Sprintf("%s/%s/%s/%s", w.stage, blockType, scope, hex.EncodeToString(sum[:8]))

	w.mu.Lock()
	w.seen[base]++
	key := fmt.Sprintf("%s#%d", base, w.seen[base])
	if b, ok := w.stored[key]; ok {
		w.written[key] = b
		w.mu.Unlock()
		return b, nil
	}
	w.mu.Unlock()

	tagged := md.Clone()
	if tagged == nil {
		tagged = model.Metadata{}
	}
	tagged[model.MetaRunID] = string(w.input.RunID)
	tagged[model.MetaWriteKey] = key

	b, err := w.memory.Create(ctx, w.input.SessionID, blockType, content, tagged)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.written[key] = b
	w.mu.Unlock()
	return b, nil
}

// finish deletes blocks an earlier attempt stored that this attempt did not
// produce, so the run's memory matches its recorded result.
func (w *blockWriter) finish(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	for key, b := range w.stored {
		if _, ok := w.written[key]; ok {
			continue
		}
		if err := w.memory.Delete(ctx, b.ID); err != nil && !errors.Is(err, model.ErrNotFound) {
			return goerr.Wrap(err, "failed to remove block of an earlier attempt", goerr.V(model.BlockIDKey, b.ID))
		}
		removed++
	}
	if reused := len(w.stored) - removed; reused > 0 || removed > 0 {
		logging.From(ctx).Info("resumed stage writes",
			"stage", w.stage,
			"run_id", w.input.RunID,
			"reused", reused,
			"removed", removed)
	}
	return nil
}

// excludeRun drops blocks written by the given run, leaving what earlier runs
// recorded.
func excludeRun(blocks []*model.MemoryBlock, runID model.AgentRunID) []*model.MemoryBlock {
	result := make([]*model.MemoryBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Metadata.String(model.MetaRunID) == string(runID) {
			continue
		}
		result = append(result, b)
	}
	return result
}
