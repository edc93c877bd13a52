package observability

import "os"

var lambdaEnvKeys = []string{
	"AWS_LAMBDA_FUNCTION_NAME",
	"AWS_LAMBDA_RUNTIME_API",
	"LAMBDA_TASK_ROOT",
	"AWS_EXECUTION_ENV",
}

// IsLambda reports whether the process runs inside the Lambda execution environment.
func IsLambda() bool {
	return isLambdaEnv(os.Getenv)
}

func isLambdaEnv(getenv func(string) string) bool {
	for _, key := range lambdaEnvKeys {
		if getenv(key) != "" {
			return true
		}
	}
	return false
}
