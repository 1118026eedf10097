package telemetry

import (
	"context"
	"expvar"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/common"
)

type spanKey struct{}

type span struct {
	name  string
	start time.Time
}

// MemoryLimitError reports that a component exceeded the configured heap
// budget while building or loading an index.
type MemoryLimitError struct {
	Component string
	Usage     uint64
	Limit     uint64
}

func (e MemoryLimitError) Error() string {
	return fmt.Sprintf("memory limit exceeded for %s: %d > %d", e.Component, e.Usage, e.Limit)
}

var (
	initOnce sync.Once

	vectorSearchTotal     *expvar.Int
	vectorSearchLatencyMS *expvar.Int
	keywordSearchTotal    *expvar.Int

	indexBuildTotal    *expvar.Int
	indexLoadTotal     *expvar.Int
	indexPassagesTotal *expvar.Int

	generationTotal        *expvar.Int
	generationTokensPrompt *expvar.Int
	generationTokensOutput *expvar.Int

	memoryLimitBytes uint64
	memoryLimitVar   *expvar.Int
	memoryUsageVar   *expvar.Int
)

func ensureInit() {
	initOnce.Do(func() {
		vectorSearchTotal = expvar.NewInt("kbrag_vector_search_total")
		vectorSearchLatencyMS = expvar.NewInt("kbrag_vector_search_latency_ms")
		keywordSearchTotal = expvar.NewInt("kbrag_keyword_search_total")

		indexBuildTotal = expvar.NewInt("kbrag_index_builds_total")
		indexLoadTotal = expvar.NewInt("kbrag_index_loads_total")
		indexPassagesTotal = expvar.NewInt("kbrag_index_passages_total")

		generationTotal = expvar.NewInt("kbrag_generation_total")
		generationTokensPrompt = expvar.NewInt("kbrag_generation_prompt_tokens")
		generationTokensOutput = expvar.NewInt("kbrag_generation_completion_tokens")

		memoryLimitVar = expvar.NewInt("kbrag_memory_limit_bytes")
		memoryUsageVar = expvar.NewInt("kbrag_memory_usage_bytes")

		memoryLimitBytes = loadMemoryLimit()
		memoryLimitVar.Set(int64(memoryLimitBytes))
	})
}

func loadMemoryLimit() uint64 {
	if limit := strings.TrimSpace(os.Getenv("KBRAG_MEMORY_LIMIT_BYTES")); limit != "" {
		if value, err := strconv.ParseUint(limit, 10, 64); err == nil {
			return value
		}
	}
	if limitMB := strings.TrimSpace(os.Getenv("KBRAG_MEMORY_LIMIT_MB")); limitMB != "" {
		if value, err := strconv.ParseUint(limitMB, 10, 64); err == nil {
			return value * 1024 * 1024
		}
	}
	return 0
}

// StartSpan records a named span and returns a completion callback that logs
// the span duration along with any caller-supplied attributes.
func StartSpan(ctx context.Context, name string) (context.Context, func(attrs ...any)) {
	ensureInit()
	sp := &span{name: name, start: time.Now()}
	ctx = context.WithValue(ctx, spanKey{}, sp)
	logger := common.Logger()
	logger.Debug("trace: start", "span", name)
	return ctx, func(attrs ...any) {
		duration := time.Since(sp.start)
		logger.Debug("trace: end", append([]any{"span", name, "dur", duration}, attrs...)...)
	}
}

func RecordVectorSearch(duration time.Duration) {
	ensureInit()
	vectorSearchTotal.Add(1)
	if duration > 0 {
		vectorSearchLatencyMS.Add(duration.Milliseconds())
	}
}

func RecordKeywordSearch() {
	ensureInit()
	keywordSearchTotal.Add(1)
}

// RecordIndexReady counts a knowledge base index entering memory, either via
// a fresh build or a persisted-store load.
func RecordIndexReady(loaded bool, passages int) {
	ensureInit()
	if loaded {
		indexLoadTotal.Add(1)
	} else {
		indexBuildTotal.Add(1)
	}
	if passages > 0 {
		indexPassagesTotal.Add(int64(passages))
	}
}

func RecordGeneration(promptTokens, completionTokens int) {
	ensureInit()
	generationTotal.Add(1)
	if promptTokens > 0 {
		generationTokensPrompt.Add(int64(promptTokens))
	}
	if completionTokens > 0 {
		generationTokensOutput.Add(int64(completionTokens))
	}
}

// CheckMemoryBudget refreshes the usage gauge and errors when the configured
// limit is exceeded. A zero limit disables the guard.
func CheckMemoryBudget(component string) error {
	ensureInit()
	usage := updateMemoryUsage()
	if memoryLimitBytes == 0 {
		return nil
	}
	if usage > memoryLimitBytes {
		err := MemoryLimitError{Component: component, Usage: usage, Limit: memoryLimitBytes}
		common.Logger().Warn("telemetry: memory guard tripped", "component", component, "usage", usage, "limit", memoryLimitBytes)
		return err
	}
	return nil
}

func updateMemoryUsage() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	memoryUsageVar.Set(int64(stats.Alloc))
	return stats.Alloc
}

func SpanDuration(ctx context.Context) time.Duration {
	sp, _ := ctx.Value(spanKey{}).(*span)
	if sp == nil {
		return 0
	}
	return time.Since(sp.start)
}
