package dataset_test

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jonwraymond/dataops/cache"
	"github.com/jonwraymond/dataops/dataset"
	"github.com/jonwraymond/dataops/warehouse"
)

func ExampleBuilder_Build() {
	b := dataset.NewBuilder(dataset.BuilderConfig{MaxRows: 100})

	q, err := b.Build(dataset.Request{
		Sources:    []string{"sales.orders"},
		Dimensions: []string{"region"},
		Metrics:    []string{"revenue"},
		Filters:    map[string]string{"channel": "web", "region": ""},
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(q.Text)
	fmt.Println(q.Args)
	// Output:
	// SELECT region, revenue FROM sales.orders WHERE channel = ? LIMIT 100
	// [web]
}

func ExampleDeriveKey() {
	a := dataset.DeriveKey(dataset.Request{
		Sources: []string{"orders"},
		Metrics: []string{"revenue", "units"},
	})
	b := dataset.DeriveKey(dataset.Request{
		Sources: []string{"orders"},
		Metrics: []string{"units", "revenue"},
	})
	fmt.Println(a == b, len(a))
	// Output: true 72
}

func ExampleCache_Load() {
	db, _ := sql.Open("sqlite", ":memory:")
	defer db.Close()
	db.SetMaxOpenConns(1)
	_, _ = db.Exec(`CREATE TABLE orders (region TEXT, revenue REAL)`)
	_, _ = db.Exec(`INSERT INTO orders VALUES ('EU', 10.5), ('US', 20.0)`)

	wh, _ := warehouse.NewSQLWarehouse(db)
	c, err := dataset.New(dataset.Config{
		Store:     cache.NewMemoryStore(),
		Warehouse: wh,
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	ctx := context.Background()
	req := dataset.Request{Sources: []string{"orders"}, Dimensions: []string{"region"}, Metrics: []string{"revenue"}}

	first, _ := c.Load(ctx, req)
	second, _ := c.Load(ctx, req)
	fmt.Println(first.Cached, second.Cached, second.Metadata.Shape.Rows)

	ok, _ := c.Extend(ctx, second.Key)
	fmt.Println(ok)
	// Output:
	// false true 2
	// true
}
