package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnString(t *testing.T) {
	assert.Equal(t,
		"postgresql://root@localhost:26257/travelchat?sslmode=disable",
		ConnString("localhost", 26257, "root", "", "travelchat", "disable"))

	assert.Equal(t,
		"postgresql://chat:p%40ss@db:26257/travelchat?sslmode=require",
		ConnString("db", 26257, "chat", "p@ss", "travelchat", "require"))
}
