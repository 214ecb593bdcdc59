package parsers

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"assignment-reconciliation-service/internal/models"
	"assignment-reconciliation-service/pkg/errors"
	"assignment-reconciliation-service/pkg/logger"
)

// DirectorySource serves order-assignment records stored as
// <dir>/<orderID>.json
type DirectorySource struct {
	dir    string
	parser *RecordParser
	logger logger.Logger
}

// NewDirectorySource creates a source over dir
func NewDirectorySource(dir string, parser *RecordParser) (*DirectorySource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, dir, err)
		}
		return nil, errors.FileError(errors.CodeDirectoryError, dir, err)
	}
	if !info.IsDir() {
		return nil, errors.FileError(errors.CodeDirectoryError, dir, nil)
	}

	if parser == nil {
		if parser, err = NewRecordParser(nil); err != nil {
			return nil, err
		}
	}

	return &DirectorySource{
		dir:    dir,
		parser: parser,
		logger: logger.WithComponent("directory-source").WithField("dir", dir),
	}, nil
}

// OrderIDs lists the order ids available in the directory, sorted
func (s *DirectorySource) OrderIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.FileError(errors.CodeDirectoryError, s.dir, err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, filepath.Ext(name)))
	}
	sort.Strings(ids)
	return ids, nil
}

// FetchOrderAssignment reads and parses the record of one order. A record
// without an order id inherits the requested one.
func (s *DirectorySource) FetchOrderAssignment(ctx context.Context, orderID string) (*models.OrderAssignmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NetworkError(errors.CodeTimeout, orderID, err)
	}

	orderID = strings.TrimSpace(orderID)
	if orderID == "" || strings.ContainsAny(orderID, `/\`) || orderID == "." || orderID == ".." {
		return nil, errors.ValidationError(errors.CodeInvalidField, "order_id", orderID, nil)
	}

	path := filepath.Join(s.dir, orderID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		case os.IsPermission(err):
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		default:
			return nil, errors.NetworkError(errors.CodeFetchFailed, path, err)
		}
	}

	record, stats, err := s.parser.ParseRecord(data)
	if err != nil {
		return nil, err
	}
	if record.OrderID == "" {
		record.OrderID = orderID
	}

	if stats.HasIssues() {
		s.logger.WithFields(logger.Fields{
			"order_id": orderID,
			"issues":   len(stats.Issues),
			"fields":   stats.DegradedKeys,
		}).Warn("Record loaded with degraded fields")
	}

	return record, nil
}
