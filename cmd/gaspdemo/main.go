// Command gaspdemo feeds a Person record to a gasp.Parser in streamed
// chunks, printing the partial value after every chunk, then the final
// validated value.
package main

import (
	"context"
	"fmt"
	"os"
	"reflect"

	"goa.design/clue/log"
	"goa.design/gasp"
)

type Person struct {
	Name    string
	Age     int
	Hobbies []string
}

func main() {
	ctx := log.Context(context.Background())

	parser, err := gasp.New(reflect.TypeOf(Person{}))
	if err != nil {
		log.Fatal(ctx, err)
	}

	chunks := []string{
		`<think>I should describe Alice.</think><Person><Name>Ali`,
		`ce</Name><Age>3`,
		`0</Age><Hobbies><item>coding</item><item>hik`,
		`ing</item></Hobbies></Person>`,
	}

	for i, chunk := range chunks {
		partial, err := parser.Feed([]byte(chunk))
		if err != nil {
			log.Fatal(ctx, err, log.KV{K: "chunk", V: i})
		}
		fmt.Printf("after chunk %d: %#v\n", i, partial)
	}

	final, err := parser.Validate()
	if err != nil {
		log.Fatal(ctx, err)
	}
	fmt.Printf("final: %#v\n", final)

	for _, e := range parser.Errors() {
		log.Warn(ctx, log.KV{K: "recovered_error", V: e.Err.Error()}, log.KV{K: "path", V: e.Path})
	}

	os.Exit(0)
}
