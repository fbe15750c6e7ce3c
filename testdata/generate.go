// Generates the sample data files used in documentation examples:
// users.parquet and orders.avro. Run from this directory:
//
//	go run generate.go
package main

import (
	"log"
	"os"

	goavro "github.com/linkedin/goavro/v2"
	"github.com/parquet-go/parquet-go"
)

type User struct {
	ID     int64   `parquet:"id"`
	Name   string  `parquet:"name"`
	Age    *int64  `parquet:"age,optional"`
	Active bool    `parquet:"active"`
	Score  float64 `parquet:"score"`
}

const ordersSchema = `{
	"type": "record",
	"name": "Order",
	"fields": [
		{"name": "id", "type": "long"},
		{"name": "user_id", "type": "long"},
		{"name": "total", "type": ["null", "double"], "default": null}
	]
}`

func main() {
	writeUsers()
	writeOrders()
}

func writeUsers() {
	age := func(n int64) *int64 { return &n }
	users := []User{
		{ID: 1, Name: "alice", Age: age(30), Active: true, Score: 95.5},
		{ID: 2, Name: "bob", Age: age(25), Active: false, Score: 82.3},
		{ID: 3, Name: "charlie", Age: nil, Active: true, Score: 88.7},
		{ID: 4, Name: "diana", Age: age(28), Active: true, Score: 91.2},
		{ID: 5, Name: "eve", Age: age(42), Active: false, Score: 76.8},
	}

	f, err := os.Create("users.parquet")
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	w := parquet.NewGenericWriter[User](f)
	if _, err := w.Write(users); err != nil {
		log.Fatal(err)
	}
	if err := w.Close(); err != nil {
		log.Fatal(err)
	}
	log.Println("wrote users.parquet")
}

func writeOrders() {
	f, err := os.Create("orders.avro")
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: f, Schema: ordersSchema})
	if err != nil {
		log.Fatal(err)
	}

	orders := []map[string]interface{}{
		{"id": int64(100), "user_id": int64(1), "total": map[string]interface{}{"double": 12.5}},
		{"id": int64(101), "user_id": int64(2), "total": map[string]interface{}{"double": 40.0}},
		{"id": int64(102), "user_id": int64(2), "total": nil},
		{"id": int64(103), "user_id": int64(4), "total": map[string]interface{}{"double": 7.25}},
	}
	records := make([]interface{}, len(orders))
	for i, o := range orders {
		records[i] = o
	}
	if err := w.Append(records); err != nil {
		log.Fatal(err)
	}
	log.Println("wrote orders.avro")
}
