package objectstore

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) List(ctx context.Context, prefix, token string) (*ListPage, error) {
	args := m.Called(ctx, prefix, token)
	page, _ := args.Get(0).(*ListPage)
	return page, args.Error(1)
}

func (m *mockStore) Get(ctx context.Context, ref Ref) (*Object, error) {
	args := m.Called(ctx, ref)
	obj, _ := args.Get(0).(*Object)
	return obj, args.Error(1)
}
