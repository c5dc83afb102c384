package uid

import (
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/labstack/gommon/log"
)

var (
	node *snowflake.Node
	once sync.Once
)

func Init(machineID int64) {
	once.Do(func() {
		var err error
		node, err = snowflake.NewNode(machineID)
		if err != nil {
			log.Fatalf("failed to initialize snowflake node: %v", err)
		}
	})
}

func Generate() int64 {
	return mustNode().Generate().Int64()
}

// ReferralCode returns a short, URL-safe code backed by a fresh snowflake id.
func ReferralCode() string {
	return mustNode().Generate().Base58()
}

func mustNode() *snowflake.Node {
	if node == nil {
		log.Fatalf("uid package not initialized")
	}
	return node
}
