package analytics

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/BTreeMap/Shanbot/internal/util"
)

// historyKeyPrefixLen is how much of a message's text identifies it during merge.
const historyKeyPrefixLen = 20

func decodeDocument(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// readDocument returns nil, nil when there is nothing on disk yet.
func readDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return decodeDocument(data)
}

// mergeDocuments combines the disk and memory views of the analytics file.
// Counters take the max, flags OR, maps merge key-wise, histories de-duplicate,
// and keys only present on disk are carried through untouched.
func mergeDocuments(disk, mem map[string]any) map[string]any {
	return mergeMaps(disk, mem)
}

func mergeMaps(disk, mem map[string]any) map[string]any {
	out := make(map[string]any, len(disk)+len(mem))
	for k, v := range disk {
		out[k] = v
	}
	for k, mv := range mem {
		dv, ok := out[k]
		if !ok {
			out[k] = mv
			continue
		}
		out[k] = mergeValue(k, dv, mv)
	}
	return out
}

// Fields whose latest value matters more than the largest one.
var memoryWinsKeys = map[string]bool{
	"last_message_was_ai_question": true,
	"last_seen_timestamp":          true,
}

// Fields fixed by whoever wrote them first.
var diskWinsKeys = map[string]bool{
	"first_seen": true,
}

func mergeValue(key string, disk, mem any) any {
	if mem == nil {
		return disk
	}
	if disk == nil || memoryWinsKeys[key] {
		return mem
	}
	if diskWinsKeys[key] {
		if s, ok := disk.(string); ok && s != "" {
			return disk
		}
		return mem
	}
	switch d := disk.(type) {
	case map[string]any:
		if m, ok := mem.(map[string]any); ok {
			return mergeMaps(d, m)
		}
	case json.Number:
		if m, ok := mem.(json.Number); ok {
			return maxNumber(d, m)
		}
	case bool:
		if m, ok := mem.(bool); ok {
			return d || m
		}
	case []any:
		if m, ok := mem.([]any); ok {
			if key == "conversation_history" {
				return mergeHistory(d, m)
			}
			return unionList(d, m)
		}
	case string:
		if m, ok := mem.(string); ok && m == "" {
			return d
		}
	}
	return mem
}

func maxNumber(a, b json.Number) json.Number {
	af, errA := a.Float64()
	bf, errB := b.Float64()
	switch {
	case errA != nil:
		return b
	case errB != nil:
		return a
	case bf > af:
		return b
	default:
		return a
	}
}

func historyKey(entry any) string {
	m, ok := entry.(map[string]any)
	if !ok {
		raw, _ := json.Marshal(entry)
		return string(raw)
	}
	ts, _ := m["timestamp"].(string)
	typ, _ := m["type"].(string)
	text, _ := m["text"].(string)
	if utf8.RuneCountInString(text) > historyKeyPrefixLen {
		text = string([]rune(text)[:historyKeyPrefixLen])
	}
	return ts + "\x00" + typ + "\x00" + text
}

// mergeHistory keeps disk order, appends memory entries not seen on disk, and
// orders the result by timestamp when every timestamp parses.
func mergeHistory(disk, mem []any) []any {
	seen := make(map[string]bool, len(disk)+len(mem))
	out := make([]any, 0, len(disk)+len(mem))
	for _, list := range [][]any{disk, mem} {
		for _, e := range list {
			k := historyKey(e)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, e)
		}
	}

	stamps := make([]int64, len(out))
	for i, e := range out {
		m, _ := e.(map[string]any)
		ts, _ := m["timestamp"].(string)
		t, err := util.ParseTimestamp(ts)
		if err != nil {
			return out
		}
		stamps[i] = t.UnixNano()
	}
	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return stamps[idx[a]] < stamps[idx[b]] })
	sorted := make([]any, len(out))
	for i, j := range idx {
		sorted[i] = out[j]
	}
	return sorted
}

// unionList merges two lists as sets, sorted numerically when all entries are numbers.
func unionList(disk, mem []any) []any {
	seen := make(map[string]bool, len(disk)+len(mem))
	out := make([]any, 0, len(disk)+len(mem))
	allNumbers := true
	for _, list := range [][]any{disk, mem} {
		for _, e := range list {
			raw, _ := json.Marshal(e)
			k := string(raw)
			if seen[k] {
				continue
			}
			seen[k] = true
			if _, ok := e.(json.Number); !ok {
				allNumbers = false
			}
			out = append(out, e)
		}
	}
	if allNumbers {
		sort.SliceStable(out, func(i, j int) bool {
			a, _ := out[i].(json.Number).Float64()
			b, _ := out[j].(json.Number).Float64()
			return a < b
		})
	}
	return out
}

// refreshDerived recomputes fields that are functions of merged counters.
func refreshDerived(doc map[string]any) {
	if convs, ok := doc["conversations"].(map[string]any); ok {
		for _, c := range convs {
			conv, ok := c.(map[string]any)
			if !ok {
				continue
			}
			metrics, _ := conv["metrics"].(map[string]any)
			if metrics != nil {
				metrics["total_messages"] = numberField(metrics, "user_messages") + numberField(metrics, "ai_messages")
			}
			meta, ok := conv["metadata"].(map[string]any)
			if !ok {
				meta = make(map[string]any)
				conv["metadata"] = meta
			}
			meta["responder_category"] = ResponderCategory(numberField(metrics, "user_messages"))
		}
	}
	if g, ok := doc["global_metrics"].(map[string]any); ok {
		// Max-merging each counter independently can leave the total behind its parts.
		g["total_messages"] = numberField(g, "total_user_messages") + numberField(g, "total_ai_messages")
		asked := numberField(g, "ai_questions_asked")
		answered := numberField(g, "user_responses_to_questions")
		rate := 0.0
		if asked > 0 {
			rate = float64(answered) / float64(asked)
		}
		g["question_response_rate"] = rate
	}
}

func numberField(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	case float64:
		return int(v)
	}
	return 0
}

// writeFileAtomic writes data to a temp file beside path, fsyncs it and renames it
// over path so readers never see a partial file.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+strings.TrimPrefix(filepath.Base(path), ".")+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err = os.Rename(tmpName, path); err != nil {
		return err
	}
	syncDir(dir)
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}
