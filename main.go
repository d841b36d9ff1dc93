package main

import "github.com/nsxzhou1114/shop-api/cmd"

func main() {
	cmd.Execute()
}
