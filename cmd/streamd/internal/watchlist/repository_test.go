package watchlist_test

import (
	"context"
	"reflect"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/watchlist"
)

func TestRepository_Members(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	mr.SAdd(watchlist.DefaultKey, "aapl", " TSLA ", "goog")

	repo := watchlist.NewRepository(rdb, "")
	members, err := repo.Members(context.Background())
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}

	sort.Strings(members)
	if !reflect.DeepEqual(members, []string{"AAPL", "GOOG", "TSLA"}) {
		t.Errorf("Symbols should come back trimmed and uppercased, got %v", members)
	}
}

func TestRepository_MissingKeyIsEmpty(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := watchlist.NewRepository(rdb, "absent")
	members, err := repo.Members(context.Background())
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(members) != 0 {
		t.Errorf("Missing set should be an empty watch-set, got %v", members)
	}
}
