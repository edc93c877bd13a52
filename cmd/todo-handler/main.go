package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/theory-cloud/todostack/pkg/logger"
	"github.com/theory-cloud/todostack/pkg/observability"
	obszap "github.com/theory-cloud/todostack/pkg/observability/zap"
	"github.com/theory-cloud/todostack/pkg/todo"
)

// EnvLogLevel sets the handler's log level.
const EnvLogLevel = "LOG_LEVEL"

func main() {
	h, err := newHandler(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "todo-handler: %v\n", err)
		os.Exit(1)
	}
	lambda.Start(h.Handle)
}

func newHandler(getenv func(string) string) (*todo.Handler, error) {
	if strings.TrimSpace(getenv(todo.EnvTableName)) == "" {
		return nil, errors.New(todo.EnvTableName + " is required")
	}

	log, err := obszap.NewZapLogger(observability.LoggerConfig{Level: getenv(EnvLogLevel)})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.SetLogger(log)

	db, err := todo.OpenTableTheory(todo.StoreConfigFromEnv(getenv))
	if err != nil {
		return nil, err
	}
	return todo.NewHandler(todo.NewTableTheoryStore(db)), nil
}
