package search

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

const defaultSize = 10

// LocalIndex is an in-memory bleve index that answers a subset of the
// Elasticsearch query DSL. It is meant for development without a cluster.
//
// Arrays of objects are flattened, so a nested query matches when each inner
// condition holds on any element, not necessarily the same one.
type LocalIndex struct {
	name    string
	index   bleve.Index
	sources map[string]map[string]any
}

// Hit is one search result.
type Hit struct {
	ID     string         `json:"_id"`
	Score  float64        `json:"_score"`
	Source map[string]any `json:"_source"`
}

// Result is a page of hits.
type Result struct {
	Total uint64 `json:"total"`
	From  int    `json:"from"`
	Hits  []Hit  `json:"hits"`
}

// LoadDocuments reads a JSON array of documents.
func LoadDocuments(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents %s: %w", path, err)
	}
	var docs []map[string]any
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("documents %s must be a JSON array of objects: %w", path, err)
	}
	return docs, nil
}

// NewLocalIndex indexes docs under the given index name. A document's "id" or
// "_id" field is used as its id, otherwise its position.
func NewLocalIndex(name string, docs []map[string]any) (*LocalIndex, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}

	li := &LocalIndex{name: name, index: idx, sources: make(map[string]map[string]any, len(docs))}
	batch := idx.NewBatch()
	for i, doc := range docs {
		id := documentID(doc, i)
		if err := batch.Index(id, doc); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to index document %s: %w", id, err)
		}
		li.sources[id] = doc
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to index documents: %w", err)
	}
	return li, nil
}

func documentID(doc map[string]any, pos int) string {
	for _, key := range []string{"id", "_id"} {
		switch v := doc[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return strconv.Itoa(pos)
}

// Name returns the index name.
func (l *LocalIndex) Name() string { return l.name }

// Close releases the index.
func (l *LocalIndex) Close() error { return l.index.Close() }

// Search runs an Elasticsearch-style request body ({"query":..., "size":..., "from":..., "sort":...}).
func (l *LocalIndex) Search(ctx context.Context, body map[string]any) (*Result, error) {
	q := query.Query(bleve.NewMatchAllQuery())
	if raw, ok := body["query"]; ok {
		clause, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("query must be an object")
		}
		translated, err := translate(clause)
		if err != nil {
			return nil, err
		}
		q = translated
	}

	size, err := intParam(body, "size", defaultSize)
	if err != nil {
		return nil, err
	}
	from, err := intParam(body, "from", 0)
	if err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequestOptions(q, size, from, false)
	order, err := sortOrder(body["sort"])
	if err != nil {
		return nil, err
	}
	req.SortBy(order)

	res, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("local search failed: %w", err)
	}

	out := &Result{Total: res.Total, From: from, Hits: make([]Hit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		out.Hits = append(out.Hits, Hit{ID: h.ID, Score: h.Score, Source: l.sources[h.ID]})
	}
	return out, nil
}

func intParam(body map[string]any, key string, def int) (int, error) {
	v, ok := body[key]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok || f < 0 {
		return 0, fmt.Errorf("%s must be a non-negative number", key)
	}
	return int(f), nil
}

// sortOrder accepts "field", {"field": "desc"}, {"field": {"order": "desc"}} or a list of those.
func sortOrder(raw any) ([]string, error) {
	var order []string
	var add func(v any) error
	add = func(v any) error {
		switch s := v.(type) {
		case string:
			order = append(order, s)
		case map[string]any:
			for field, spec := range s {
				dir := ""
				switch d := spec.(type) {
				case string:
					dir = d
				case map[string]any:
					dir, _ = d["order"].(string)
				}
				if dir == "desc" {
					field = "-" + field
				}
				order = append(order, field)
			}
		case []any:
			for _, item := range s {
				if err := add(item); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("unsupported sort %v", v)
		}
		return nil
	}
	if raw != nil {
		if err := add(raw); err != nil {
			return nil, err
		}
	}
	if len(order) == 0 {
		order = []string{"-_score"}
	}
	return append(order, "_id"), nil
}

// translate converts one query clause into a bleve query.
func translate(clause map[string]any) (query.Query, error) {
	if len(clause) != 1 {
		return nil, fmt.Errorf("query clause must have exactly one key, got %d", len(clause))
	}
	for kind, raw := range clause {
		switch kind {
		case "match_all":
			return bleve.NewMatchAllQuery(), nil
		case "term":
			field, value, err := fieldValue(kind, raw, "value")
			if err != nil {
				return nil, err
			}
			return exactQuery(field, value)
		case "terms":
			return termsQuery(raw)
		case "match":
			return matchQuery(raw)
		case "match_phrase":
			field, value, err := fieldValue(kind, raw, "query")
			if err != nil {
				return nil, err
			}
			text, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("match_phrase on %s needs a string", field)
			}
			q := bleve.NewMatchPhraseQuery(text)
			q.SetField(field)
			return q, nil
		case "range":
			return rangeQuery(raw)
		case "bool":
			return boolQuery(raw)
		case "nested":
			body, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("nested must be an object")
			}
			inner, ok := body["query"].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("nested query on path %v has no query", body["path"])
			}
			return translate(inner)
		default:
			return nil, fmt.Errorf("unsupported query type %q", kind)
		}
	}
	return nil, fmt.Errorf("empty query clause")
}

// fieldValue unpacks {"field": value} or {"field": {valueKey: value}}.
func fieldValue(kind string, raw any, valueKey string) (string, any, error) {
	body, ok := raw.(map[string]any)
	if !ok || len(body) != 1 {
		return "", nil, fmt.Errorf("%s needs exactly one field", kind)
	}
	for field, v := range body {
		if inner, ok := v.(map[string]any); ok {
			val, ok := inner[valueKey]
			if !ok {
				return "", nil, fmt.Errorf("%s on %s is missing %q", kind, field, valueKey)
			}
			return field, val, nil
		}
		return field, v, nil
	}
	return "", nil, fmt.Errorf("%s needs exactly one field", kind)
}

// exactQuery matches a keyword, boolean or numeric value.
func exactQuery(field string, value any) (query.Query, error) {
	switch v := value.(type) {
	case bool:
		q := bleve.NewBoolFieldQuery(v)
		q.SetField(field)
		return q, nil
	case string:
		q := bleve.NewMatchPhraseQuery(v)
		q.SetField(field)
		return q, nil
	default:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("unsupported term value %v for %s", value, field)
		}
		inclusive := true
		q := bleve.NewNumericRangeInclusiveQuery(&f, &f, &inclusive, &inclusive)
		q.SetField(field)
		return q, nil
	}
}

func termsQuery(raw any) (query.Query, error) {
	body, ok := raw.(map[string]any)
	if !ok || len(body) != 1 {
		return nil, fmt.Errorf("terms needs exactly one field")
	}
	disjunction := bleve.NewDisjunctionQuery()
	for field, v := range body {
		values, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("terms on %s needs a list", field)
		}
		for _, value := range values {
			q, err := exactQuery(field, value)
			if err != nil {
				return nil, err
			}
			disjunction.AddQuery(q)
		}
	}
	return disjunction, nil
}

func matchQuery(raw any) (query.Query, error) {
	body, ok := raw.(map[string]any)
	if !ok || len(body) != 1 {
		return nil, fmt.Errorf("match needs exactly one field")
	}
	for field, v := range body {
		text := ""
		operator := ""
		switch m := v.(type) {
		case string:
			text = m
		case map[string]any:
			text, _ = m["query"].(string)
			operator, _ = m["operator"].(string)
		default:
			if f, ok := toFloat(v); ok {
				return exactQuery(field, f)
			}
			if b, ok := v.(bool); ok {
				return exactQuery(field, b)
			}
		}
		if text == "" {
			return nil, fmt.Errorf("match on %s needs a query string", field)
		}
		q := bleve.NewMatchQuery(text)
		q.SetField(field)
		if operator == "and" || operator == "AND" {
			q.SetOperator(query.MatchQueryOperatorAnd)
		}
		return q, nil
	}
	return nil, fmt.Errorf("match needs exactly one field")
}

func rangeQuery(raw any) (query.Query, error) {
	body, ok := raw.(map[string]any)
	if !ok || len(body) != 1 {
		return nil, fmt.Errorf("range needs exactly one field")
	}
	for field, v := range body {
		bounds, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("range on %s needs bounds", field)
		}
		lower, lowerIncl, upper, upperIncl := bounds["gte"], true, bounds["lte"], true
		if gt, ok := bounds["gt"]; ok {
			lower, lowerIncl = gt, false
		}
		if lt, ok := bounds["lt"]; ok {
			upper, upperIncl = lt, false
		}
		if lower == nil && upper == nil {
			return nil, fmt.Errorf("range on %s has no bounds", field)
		}

		if isDateBound(lower) || isDateBound(upper) {
			start, err := parseDateBound(lower)
			if err != nil {
				return nil, fmt.Errorf("range on %s: %w", field, err)
			}
			end, err := parseDateBound(upper)
			if err != nil {
				return nil, fmt.Errorf("range on %s: %w", field, err)
			}
			q := bleve.NewDateRangeInclusiveQuery(start, end, &lowerIncl, &upperIncl)
			q.SetField(field)
			return q, nil
		}

		var minPtr, maxPtr *float64
		if lower != nil {
			f, ok := toFloat(lower)
			if !ok {
				return nil, fmt.Errorf("range on %s: invalid lower bound %v", field, lower)
			}
			minPtr = &f
		}
		if upper != nil {
			f, ok := toFloat(upper)
			if !ok {
				return nil, fmt.Errorf("range on %s: invalid upper bound %v", field, upper)
			}
			maxPtr = &f
		}
		q := bleve.NewNumericRangeInclusiveQuery(minPtr, maxPtr, &lowerIncl, &upperIncl)
		q.SetField(field)
		return q, nil
	}
	return nil, fmt.Errorf("range needs exactly one field")
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func isDateBound(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err != nil
}

func parseDateBound(v any) (time.Time, error) {
	if v == nil {
		return time.Time{}, nil
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("date bound must be a string, got %v", v)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func boolQuery(raw any) (query.Query, error) {
	body, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("bool must be an object")
	}

	clauses := func(key string) ([]query.Query, error) {
		v, ok := body[key]
		if !ok {
			return nil, nil
		}
		var items []any
		switch c := v.(type) {
		case []any:
			items = c
		case map[string]any:
			items = []any{c}
		default:
			return nil, fmt.Errorf("bool.%s must be a clause or a list", key)
		}
		out := make([]query.Query, 0, len(items))
		for _, item := range items {
			clause, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("bool.%s entries must be objects", key)
			}
			q, err := translate(clause)
			if err != nil {
				return nil, err
			}
			out = append(out, q)
		}
		return out, nil
	}

	bq := bleve.NewBooleanQuery()
	required := 0
	for _, key := range []string{"must", "filter"} {
		qs, err := clauses(key)
		if err != nil {
			return nil, err
		}
		if len(qs) > 0 {
			bq.AddMust(qs...)
			required += len(qs)
		}
	}
	should, err := clauses("should")
	if err != nil {
		return nil, err
	}
	if len(should) > 0 {
		bq.AddShould(should...)
		minShould := 0.0
		if required == 0 {
			minShould = 1
		}
		if m, ok := toFloat(body["minimum_should_match"]); ok {
			minShould = m
		}
		bq.SetMinShould(minShould)
	}
	mustNot, err := clauses("must_not")
	if err != nil {
		return nil, err
	}
	if len(mustNot) > 0 {
		bq.AddMustNot(mustNot...)
	}

	if required == 0 && len(should) == 0 && len(mustNot) == 0 {
		return bleve.NewMatchAllQuery(), nil
	}
	return bq, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
