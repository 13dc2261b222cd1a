package bleveindex

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"

	"macdTraderBot/internal/domain"
	"macdTraderBot/internal/ports"
)

// orderDoc is the indexed projection of an order record. Prices are
// indexed as floats for range queries; the authoritative exact values live
// in the primary store.
type orderDoc struct {
	OrderID       int64   `json:"order_id"`
	ParentOrderID int64   `json:"parent_order_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	Price         float64 `json:"price"`
	Quantity      float64 `json:"quantity"`
	State         string  `json:"state"`
	CreatedAt     string  `json:"created_at"`
}

// Index implements ports.OrderIndex backed by a Bleve search index. It is
// the secondary store of the dual write: writes here may fail without
// failing the order path, and the lifecycle manager repairs divergence in
// the background.
type Index struct {
	idx    bleve.Index
	logger ports.Logger
}

// NewIndex opens the index at path, creating it with the order mapping if
// it does not exist yet.
func NewIndex(path string, logger ports.Logger) (*Index, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening search index at %s: %v", ports.ErrDBConnection, path, err)
	}
	logger.Info(context.Background(), "order search index ready", map[string]interface{}{"path": path})
	return &Index{idx: idx, logger: logger}, nil
}

func buildMapping() mapping.IndexMapping {
	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = keyword.Name

	numericField := bleve.NewNumericFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("symbol", keywordField)
	doc.AddFieldMappingsAt("side", keywordField)
	doc.AddFieldMappingsAt("type", keywordField)
	doc.AddFieldMappingsAt("state", keywordField)
	doc.AddFieldMappingsAt("price", numericField)
	doc.AddFieldMappingsAt("quantity", numericField)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Index writes or replaces the document for the record.
func (i *Index) Index(ctx context.Context, rec *domain.OrderRecord) error {
	doc := orderDoc{
		OrderID:   rec.OrderID,
		Symbol:    rec.Symbol,
		Side:      string(rec.Side),
		Type:      string(rec.Type),
		Price:     rec.Price.InexactFloat64(),
		Quantity:  rec.Quantity.InexactFloat64(),
		State:     string(rec.State),
		CreatedAt: rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if rec.ParentOrderID != nil {
		doc.ParentOrderID = *rec.ParentOrderID
	}

	if err := i.idx.Index(docID(rec.OrderID), doc); err != nil {
		return fmt.Errorf("%w: indexing order %d: %v", ports.ErrIndexFailed, rec.OrderID, err)
	}
	return nil
}

// Delete removes the document for the order ID. Missing documents are not
// an error.
func (i *Index) Delete(ctx context.Context, orderID int64) error {
	if err := i.idx.Delete(docID(orderID)); err != nil {
		return fmt.Errorf("%w: deleting order %d: %v", ports.ErrIndexFailed, orderID, err)
	}
	return nil
}

// FindOrderIDs runs a term query against one keyword field (symbol, side,
// type or state) and returns matching order IDs.
func (i *Index) FindOrderIDs(ctx context.Context, field, value string, limit int) ([]int64, error) {
	q := bleve.NewTermQuery(value)
	q.SetField(field)

	req := bleve.NewSearchRequest(q)
	req.Size = limit

	res, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: searching %s=%s: %v", ports.ErrQueryFailed, field, value, err)
	}

	out := make([]int64, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed document ID %q", ports.ErrQueryFailed, hit.ID)
		}
		out = append(out, id)
	}
	return out, nil
}

// Close closes the underlying index.
func (i *Index) Close() error {
	return i.idx.Close()
}

func docID(orderID int64) string {
	return strconv.FormatInt(orderID, 10)
}
