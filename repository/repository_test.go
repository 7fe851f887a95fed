/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/tomoncle/dalkit/database"
	"github.com/tomoncle/dalkit/model"
	"github.com/tomoncle/dalkit/types"
)

type Author struct {
	bun.BaseModel `bun:"table:authors"`
	model.BigIntAuditBase

	Name  string  `bun:"name,notnull,unique" json:"name"`
	Email *string `bun:"email" json:"email"`
	Age   int     `bun:"age" json:"age"`
}

type Tag struct {
	bun.BaseModel `bun:"table:tags"`
	model.UUIDAuditBase

	Label string `bun:"label,notnull" json:"label"`
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqldb.SetMaxIdleConns(4)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, m := range []any{(*Author)(nil), (*Tag)(nil)} {
		_, err := db.NewCreateTable().Model(m).Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

func seedAuthors(t *testing.T, repo Repository[Author], names ...string) []*Author {
	t.Helper()
	authors := make([]*Author, len(names))
	for i, n := range names {
		authors[i] = &Author{Name: n, Age: 20 + i}
	}
	out, err := repo.AddMany(context.Background(), authors)
	require.NoError(t, err)
	return out
}

func TestAddAndGet(t *testing.T) {
	repo := New[Author](newTestDB(t))
	ctx := context.Background()

	a, err := repo.Add(ctx, &Author{Name: "Ursula", Age: 88})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)
	assert.False(t, a.CreatedAt.IsZero())
	assert.Equal(t, a.CreatedAt, a.UpdatedAt)

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ursula", got.Name)
	assert.Equal(t, 88, got.Age)

	_, err = repo.Get(ctx, int64(9999))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, ErrRepository))
	var re *RepositoryError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "get", re.Op)
	assert.Equal(t, "authors", re.Table)
}

func TestAddConflict(t *testing.T) {
	repo := New[Author](newTestDB(t))
	ctx := context.Background()

	_, err := repo.Add(ctx, &Author{Name: "dup"})
	require.NoError(t, err)
	_, err = repo.Add(ctx, &Author{Name: "dup"})
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.False(t, IsNotFound(err))
}

func TestAddManyChunks(t *testing.T) {
	repo := New[Author](newTestDB(t), WithChunkSize(2))
	authors := seedAuthors(t, repo, "a", "b", "c", "d", "e")

	for _, a := range authors {
		assert.NotZero(t, a.ID)
	}
	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestFilters(t *testing.T) {
	repo := New[Author](newTestDB(t))
	ctx := context.Background()
	seedAuthors(t, repo, "Alice", "alfred", "Bob", "Carol")

	tests := []struct {
		name    string
		filters []types.Filter
		want    []string
	}{
		{"search ignore case", []types.Filter{types.SearchFilter{Field: "name", Value: "AL", IgnoreCase: true}, types.OrderBy{Field: "name"}}, []string{"Alice", "alfred"}},
		{"not search", []types.Filter{types.NotInSearchFilter{Field: "name", Value: "al", IgnoreCase: true}, types.OrderBy{Field: "name"}}, []string{"Bob", "Carol"}},
		{"in", []types.Filter{types.In("name", "Bob", "Carol"), types.OrderBy{Field: "name", Order: types.Desc}}, []string{"Carol", "Bob"}},
		{"empty in is a no-op", []types.Filter{types.In[string]("name"), types.OrderBy{Field: "id"}}, []string{"Alice", "alfred", "Bob", "Carol"}},
		{"not in", []types.Filter{types.NotIn("age", 20, 21), types.OrderBy{Field: "id"}}, []string{"Bob", "Carol"}},
		{"equals", []types.Filter{types.Eq("age", 22)}, []string{"Bob"}},
		{"is null", []types.Filter{types.Eq("email", nil), types.OrderBy{Field: "id"}, types.LimitOffset{Limit: 1, Offset: 1}}, []string{"alfred"}},
		{"raw", []types.Filter{types.NewQueryFilter("age >= ?", 22), &types.OrderBy{Field: "age"}}, []string{"Bob", "Carol"}},
		{"nil pointers are skipped", []types.Filter{(*types.LimitOffset)(nil), (*types.OrderBy)(nil), (*types.QueryFilter)(nil), types.Eq("age", 23)}, []string{"Carol"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := repo.List(ctx, tt.filters...)
			require.NoError(t, err)
			names := make([]string, len(rows))
			for i, r := range rows {
				names[i] = r.Name
			}
			assert.Equal(t, tt.want, names)
		})
	}

	_, err := repo.List(ctx, types.Eq("nope", 1))
	assert.True(t, errors.Is(err, ErrRepository))

	_, err = repo.List(ctx, types.OrderBy{Field: "name", Order: types.ParseSortOrder("sideways")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sort order")
}

func TestDateFilters(t *testing.T) {
	repo := New[Author](newTestDB(t))
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, n := range []string{"d1", "d2", "d3"} {
		a := &Author{Name: n}
		a.CreatedAt = base.Add(time.Duration(i) * 24 * time.Hour)
		_, err := repo.Add(ctx, a)
		require.NoError(t, err)
	}
	day2 := base.Add(24 * time.Hour)

	n, err := repo.Count(ctx, types.BeforeAfter{Field: "created_at", Before: &day2})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.Count(ctx, types.OnBeforeAfter{Field: "created_at", OnOrAfter: &day2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.Count(ctx, types.BeforeAfter{Field: "created_at", After: &base, Before: &day2})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCountAndExistsIgnorePagination(t *testing.T) {
	repo := New[Author](newTestDB(t))
	ctx := context.Background()
	seedAuthors(t, repo, "a", "b", "c")

	n, err := repo.Count(ctx, types.LimitOffset{Limit: 1, Offset: 2}, types.OrderBy{Field: "name"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ok, err := repo.Exists(ctx, types.Eq("name", "b"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Exists(ctx, types.Eq("name", "z"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetOne(t *testing.T) {
	repo := New[Author](newTestDB(t))
	ctx := context.Background()
	seedAuthors(t, repo, "a", "b")

	a, err := repo.GetOne(ctx, types.Eq("name", "a"))
	require.NoError(t, err)
	assert.Equal(t, "a", a.Name)

	_, err = repo.GetOne(ctx, types.Eq("name", "zz"))
	assert.True(t, IsNotFound(err))

	none, err := repo.GetOneOrNone(ctx, types.Eq("name", "zz"))
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = repo.GetOne(ctx)
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
}

func TestGetOrCreate(t *testing.T) {
	repo := New[Author](newTestDB(t), WithMatchFields("name"))
	ctx := context.Background()

	a, created, err := repo.GetOrCreate(ctx, map[string]any{"name": "Iain", "age": 40})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, a.ID)
	assert.Equal(t, 40, a.Age)

	b, created, err := repo.GetOrCreate(ctx, map[string]any{"name": "Iain", "age": 41, "email": "iain@example.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, 41, b.Age)
	require.NotNil(t, b.Email)
	assert.Equal(t, "iain@example.com", *b.Email)

	stored, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 41, stored.Age)

	c, created, err := repo.GetOrCreate(ctx, map[string]any{"name": "Iain", "age": 99}, WithUpsert(false))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 41, c.Age)

	_, created, err = repo.GetOrCreate(ctx, map[string]any{"name": "Iain", "age": 41}, MatchOn("name", "age"))
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = repo.GetOrCreate(ctx, map[string]any{"unknown": 1})
	assert.True(t, errors.Is(err, ErrRepository))
}

func TestUpdate(t *testing.T) {
	repo := New[Author](newTestDB(t))
	ctx := context.Background()
	a, err := repo.Add(ctx, &Author{Name: "before", Age: 1})
	require.NoError(t, err)

	patch := &Author{Name: "after", Age: 2}
	patch.ID = a.ID
	got, err := repo.Update(ctx, patch)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Name)
	assert.True(t, got.CreatedAt.Equal(a.CreatedAt))
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))

	missing := &Author{Name: "ghost"}
	missing.ID = 404
	_, err = repo.Update(ctx, missing)
	assert.True(t, IsNotFound(err))
}

func TestUpdateKeepsCreatedAt(t *testing.T) {
	repo := New[Author](newTestDB(t))
	ctx := context.Background()
	a, err := repo.Add(ctx, &Author{Name: "immutable", Age: 1})
	require.NoError(t, err)
	created := a.CreatedAt

	patch := &Author{Name: "immutable", Age: 2}
	patch.ID = a.ID
	patch.CreatedAt = created.Add(-240 * time.Hour)
	_, err = repo.Update(ctx, patch)
	require.NoError(t, err)

	stored, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Age)
	assert.True(t, stored.CreatedAt.Equal(created), "created_at moved to %s", stored.CreatedAt)
	assert.True(t, patch.CreatedAt.Equal(created))
}

func TestUpdateMany(t *testing.T) {
	repo := New[Author](newTestDB(t), WithChunkSize(2))
	ctx := context.Background()
	authors := seedAuthors(t, repo, "a", "b", "c")
	for _, a := range authors {
		a.Age = 100
	}

	_, err := repo.UpdateMany(ctx, authors)
	require.NoError(t, err)
	n, err := repo.Count(ctx, types.Eq("age", 100))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ghost := &Author{Name: "ghost", Age: 7}
	_, err = repo.UpdateMany(ctx, []*Author{ghost})
	assert.True(t, IsNotFound(err))

	authors[0].Age = 1
	ghost.ID = 404
	_, err = repo.UpdateMany(ctx, []*Author{authors[0], ghost})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "404")

	n, err = repo.Count(ctx, types.Eq("age", 100))
	require.NoError(t, err)
	assert.Equal(t, 3, n, "failed batch is rolled back")
}

func TestUpsert(t *testing.T) {
	repo := New[Tag](newTestDB(t))
	ctx := context.Background()

	tag, err := repo.Upsert(ctx, &Tag{Label: "go"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, tag.ID)
	created := tag.CreatedAt

	tag.Label = "golang"
	again, err := repo.Upsert(ctx, tag)
	require.NoError(t, err)
	assert.Equal(t, "golang", again.Label)

	stored, err := repo.Get(ctx, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, "golang", stored.Label)
	assert.True(t, stored.CreatedAt.Equal(created))

	many, err := repo.UpsertMany(ctx, []*Tag{{Label: "x"}, {Label: "y"}, stored})
	require.NoError(t, err)
	assert.Len(t, many, 3)
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDelete(t *testing.T) {
	repo := New[Author](newTestDB(t), WithChunkSize(2))
	ctx := context.Background()
	authors := seedAuthors(t, repo, "a", "b", "c", "d")

	gone, err := repo.Delete(ctx, authors[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "a", gone.Name)
	_, err = repo.Delete(ctx, authors[0].ID)
	assert.True(t, IsNotFound(err))

	deleted, err := repo.DeleteMany(ctx, []any{authors[1].ID, authors[2].ID, authors[3].ID, int64(777)})
	require.NoError(t, err)
	assert.Len(t, deleted, 3)
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListAndCountAndPage(t *testing.T) {
	repo := New[Author](newTestDB(t))
	ctx := context.Background()
	seedAuthors(t, repo, "a", "b", "c", "d", "e")

	rows, total, err := repo.ListAndCount(ctx, types.OrderBy{Field: "name"}, types.LimitOffset{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, rows, 2)
	assert.Equal(t, "c", rows[0].Name)

	page, err := repo.Page(ctx, types.NewPageRequest(3, 2,
		[]types.Filter{types.NotIn("name", "a")},
		[]types.OrderBy{{Field: "name"}},
	))
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.Pages())
	assert.Empty(t, page.Items)

	page, err = repo.Page(ctx, types.NewPageRequestWithOrders(1, 2, types.OrderBy{Field: "name", Order: types.Desc}))
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "e", page.Items[0].Name)
	assert.Equal(t, 3, page.Pages())

	byQuery, err := repo.Query(ctx, "name IN (?)", bun.In([]string{"a", "b"}))
	require.NoError(t, err)
	assert.Len(t, byQuery, 2)
}

func TestFilterCollection(t *testing.T) {
	repo := New[Author](newTestDB(t))
	email := "x@example.com"
	items := []*Author{{Name: "a", Age: 1}, {Name: "b", Age: 2, Email: &email}, {Name: "c", Age: 2}}

	assert.Len(t, repo.FilterCollection(items, map[string]any{"age": 2}), 2)
	got := repo.FilterCollection(items, map[string]any{"age": 2, "email": email})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Name)
	assert.Empty(t, repo.FilterCollection(items, map[string]any{"bogus": 1}))
}

func TestRepositoryJoinsSession(t *testing.T) {
	db := newTestDB(t)
	repo := New[Author](db)
	ctx := context.Background()
	boom := errors.New("abort")

	err := database.Session(ctx, db, func(ctx context.Context, _ bun.Tx) error {
		if _, err := repo.Add(ctx, &Author{Name: "in-tx"}); err != nil {
			return err
		}
		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAutoCommitWrapsWrites(t *testing.T) {
	repo := New[Author](newTestDB(t), WithAutoCommit(true), WithChunkSize(1))
	ctx := context.Background()

	_, err := repo.AddMany(ctx, []*Author{{Name: "same"}, {Name: "same"}})
	assert.True(t, IsConflict(err))
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCheckHealth(t *testing.T) {
	repo := New[Author](newTestDB(t))
	ok, err := repo.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewPanicsOnUnknownIDAttribute(t *testing.T) {
	db := newTestDB(t)
	assert.Panics(t, func() { New[Author](db, WithIDAttribute("uuid")) })
	assert.Equal(t, "name", New[Author](db, WithIDAttribute("name")).IDAttribute())
}

func TestCachedRepository(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db := newTestDB(t)
	repo := NewCached(New[Author](db), client, time.Minute)
	ctx := context.Background()

	a, err := repo.Add(ctx, &Author{Name: "cached", Age: 3})
	require.NoError(t, err)
	key := repo.Key(a.ID)
	assert.Equal(t, fmt.Sprintf("authors:%d", a.ID), key)
	assert.False(t, mr.Exists(key))

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "cached", got.Name)
	require.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	_, err = db.NewUpdate().Model((*Author)(nil)).Set("age = ?", 30).Where("id = ?", a.ID).Exec(ctx)
	require.NoError(t, err)
	got, err = repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Age, "served from cache")

	got.Age = 31
	_, err = repo.Update(ctx, got)
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))

	got, err = repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 31, got.Age)

	_, err = repo.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))
	_, err = repo.Get(ctx, a.ID)
	assert.True(t, IsNotFound(err))

	mr.Close()
	_, err = repo.Get(ctx, int64(12345))
	assert.True(t, IsNotFound(err), "redis outage falls through to the database")
}

func TestCachedRepositoryGetOrCreateInvalidates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := NewCached(New[Author](newTestDB(t), WithMatchFields("name")), client, 0)
	ctx := context.Background()

	a, err := repo.Add(ctx, &Author{Name: "g", Age: 1})
	require.NoError(t, err)
	_, err = repo.Get(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, mr.Exists(repo.Key(a.ID)))

	_, created, err := repo.GetOrCreate(ctx, map[string]any{"name": "g", "age": 42})
	require.NoError(t, err)
	assert.False(t, created)
	assert.False(t, mr.Exists(repo.Key(a.ID)))

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, got.Age)
}

func TestCachedRepositoryGetOrCreateKeepsCacheWithoutUpsert(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := NewCached(New[Author](newTestDB(t), WithMatchFields("name")), client, 0)
	ctx := context.Background()

	a, err := repo.Add(ctx, &Author{Name: "h", Age: 3})
	require.NoError(t, err)
	_, err = repo.Get(ctx, a.ID)
	require.NoError(t, err)

	got, created, err := repo.GetOrCreate(ctx, map[string]any{"name": "h", "age": 9}, WithUpsert(false))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 3, got.Age)
	assert.True(t, mr.Exists(repo.Key(a.ID)))
}

func TestCachedRepositoryInSession(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db := newTestDB(t)
	repo := NewCached(New[Author](db), client, 0)
	ctx := context.Background()

	a, err := repo.Add(ctx, &Author{Name: "tx", Age: 1})
	require.NoError(t, err)
	key := repo.Key(a.ID)

	err = database.Session(ctx, db, func(ctx context.Context, _ bun.Tx) error {
		got, err := repo.Get(ctx, a.ID)
		if err != nil {
			return err
		}
		assert.False(t, mr.Exists(key), "reads in a session skip the cache")

		got.Age = 5
		if _, err := repo.Update(ctx, got); err != nil {
			return err
		}
		// another reader caches the row before commit
		return mr.Set(key, `{"id":1,"name":"tx","age":1}`)
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(key), "dropped again after commit")

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Age)
}
