package stm_test

import (
	"fmt"

	"github.com/markuspd/tl2stm"
)

func Example() {
	if err := stm.Init(); err != nil && err != stm.ErrDoubleInit {
		panic(err)
	}

	balance := stm.Atomize(100)

	_, err := stm.Atomically(func(tx *stm.Tx) (struct{}, error) {
		cur, err := stm.Read(tx, balance)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, stm.Write(tx, balance, cur-30)
	})
	if err != nil {
		panic(err)
	}

	got, err := stm.Atomically(func(tx *stm.Tx) (int, error) {
		return stm.Read(tx, balance)
	})
	if err != nil {
		panic(err)
	}
	fmt.Println(got)

	// Output:
	// 70
}
