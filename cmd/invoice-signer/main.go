package main

import (
	"github.com/esign-networks/invoice-signer/app/internal/cli"
)

func main() {
	cli.Execute()
}
