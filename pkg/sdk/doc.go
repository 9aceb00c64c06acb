// Package dataforge embeds the dataforge data layer in a Go program.
//
// The client talks to MongoDB directly and applies the same rules as the
// HTTP server: typed models, relation resolution, content-hash
// deduplication, uniqueness constraints and per-user quotas.
//
//	client, _ := dataforge.New(ctx, dataforge.WithMongo("mongodb://localhost:27017", "app"))
//	defer client.Close(ctx)
//
//	client.Models().Ensure(ctx, dataforge.ModelSpec{
//	    Name: "Person",
//	    Fields: []dataforge.Field{
//	        {Name: "name", Type: dataforge.FieldString, Required: true},
//	        {Name: "age", Type: dataforge.FieldNumber},
//	    },
//	})
//	client.Documents("Person").Insert(ctx, map[string]any{"name": "Ada", "age": 36})
//
//	res, _ := client.Search("Person").
//	    Where(map[string]any{"path": []any{"age"}, "op": "$gte", "value": 30}).
//	    SortByDesc("age").
//	    Limit(10).
//	    Do(ctx)
package dataforge
