package mystuff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/guarzo/mystuff/common"
	"github.com/guarzo/mystuff/common/model"
	"github.com/guarzo/mystuff/modules/api"
)

// ItemsEndpoint is the collection resource of the MyStuff backend.
const ItemsEndpoint = "/api/v1/resources/mystuff"

var (
	ErrItemNotFound = errors.New("item not found")
	ErrInvalidItem  = errors.New("item name is required")
)

// ItemService manages the user's items.
type ItemService interface {
	ListItems(ctx context.Context) ([]model.Item, error)
	GetItem(ctx context.Context, id int64) (*model.Item, error)
	CreateItem(ctx context.Context, item model.Item) (*model.Item, error)
	UpdateItem(ctx context.Context, item model.Item) (*model.Item, error)
	DeleteItem(ctx context.Context, id int64) error
}

type itemService struct {
	client api.Client
}

// NewItemService constructs an ItemService.
func NewItemService(client api.Client) ItemService {
	return &itemService{client: client}
}

func (s *itemService) ListItems(ctx context.Context) ([]model.Item, error) {
	var items []model.Item
	if err := s.client.GetJSON(ctx, ItemsEndpoint, &items, nil); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (s *itemService) GetItem(ctx context.Context, id int64) (*model.Item, error) {
	var item model.Item
	if err := s.client.GetJSON(ctx, itemEndpoint(id), &item, nil); err != nil {
		if common.IsStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("item %d: %w", id, ErrItemNotFound)
		}
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return &item, nil
}

func (s *itemService) CreateItem(ctx context.Context, item model.Item) (*model.Item, error) {
	if item.Name == "" {
		return nil, ErrInvalidItem
	}
	item.ID = 0
	body, err := model.JSONMarshal(item)
	if err != nil {
		return nil, err
	}

	data, err := s.client.PostJSON(ctx, ItemsEndpoint, bytes.NewReader(body), http.StatusOK, http.StatusCreated)
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	s.client.RemoveCacheEntry(ItemsEndpoint, nil)
	return decodeItem(data)
}

func (s *itemService) UpdateItem(ctx context.Context, item model.Item) (*model.Item, error) {
	if item.Name == "" {
		return nil, ErrInvalidItem
	}
	body, err := model.JSONMarshal(item)
	if err != nil {
		return nil, err
	}

	data, err := s.client.PutJSON(ctx, itemEndpoint(item.ID), bytes.NewReader(body), http.StatusOK, http.StatusNoContent)
	if err != nil {
		if common.IsStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("item %d: %w", item.ID, ErrItemNotFound)
		}
		return nil, fmt.Errorf("update item %d: %w", item.ID, err)
	}
	s.forget(item.ID)
	if len(data) == 0 {
		return &item, nil
	}
	return decodeItem(data)
}

func (s *itemService) DeleteItem(ctx context.Context, id int64) error {
	_, err := s.client.DeleteJSON(ctx, itemEndpoint(id), http.StatusOK, http.StatusNoContent)
	if err != nil {
		if common.IsStatus(err, http.StatusNotFound) {
			return fmt.Errorf("item %d: %w", id, ErrItemNotFound)
		}
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	s.forget(id)
	return nil
}

// forget drops cached reads made stale by a write.
func (s *itemService) forget(id int64) {
	s.client.RemoveCacheEntry(ItemsEndpoint, nil)
	s.client.RemoveCacheEntry(itemEndpoint(id), nil)
}

func itemEndpoint(id int64) string {
	return fmt.Sprintf("%s/%d", ItemsEndpoint, id)
}

func decodeItem(data []byte) (*model.Item, error) {
	var item model.Item
	if err := model.JSONUnmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to decode item: %w", err)
	}
	return &item, nil
}
