package todocdk

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/jsii-runtime-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/todostack"
)

func requireNode(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("node"); err != nil {
		t.Skip("node is required to synthesize CDK stacks")
	}
}

func artifactDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bootstrap"), []byte("#!/bin/sh\n"), 0o755))
	return dir
}

func prebuiltGraph(t *testing.T, kind todostack.RoutingKind) *todostack.Graph {
	t.Helper()
	dir := artifactDir(t)

	decl := todostack.DefaultDeclaration("todo-api")
	decl.Routing.Kind = kind
	decl.Compute.Entry = todostack.Entry{Packaging: todostack.PackagingPrebuilt, Path: dir, Handler: "bootstrap"}
	graph, err := todostack.Assemble(decl)
	require.NoError(t, err)
	return graph
}

func TestNewTodoStack_Rest(t *testing.T) {
	requireNode(t)
	graph := prebuiltGraph(t, todostack.RoutingRest)

	app := awscdk.NewApp(nil)
	ts, err := NewTodoStack(app, graph)
	require.NoError(t, err)
	require.NotNil(t, ts.RestAPI)
	assert.Nil(t, ts.HTTPAPI)

	template := assertions.Template_FromStack(ts.Stack, nil)
	template.ResourceCountIs(jsii.String("AWS::DynamoDB::Table"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::DynamoDB::Table"), map[string]any{
		"TableName":   "todo-api-todos-dev",
		"BillingMode": "PAY_PER_REQUEST",
		"KeySchema":   []any{map[string]any{"AttributeName": "id", "KeyType": "HASH"}},
		"GlobalSecondaryIndexes": []any{map[string]any{
			"IndexName":  "status-index",
			"KeySchema":  []any{map[string]any{"AttributeName": "status", "KeyType": "HASH"}},
			"Projection": map[string]any{"ProjectionType": "ALL"},
		}},
	})
	template.HasResourceProperties(jsii.String("AWS::Lambda::Function"), map[string]any{
		"Runtime":       "provided.al2023",
		"Handler":       "bootstrap",
		"Timeout":       20,
		"Architectures": []any{"arm64"},
		"Environment": map[string]any{
			"Variables": map[string]any{"TABLE_NAME": assertions.Match_AnyValue()},
		},
	})
	template.ResourceCountIs(jsii.String("AWS::ApiGateway::RestApi"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::ApiGateway::Stage"), map[string]any{"StageName": "v1"})
	template.HasResourceProperties(jsii.String("AWS::ApiGateway::Resource"), map[string]any{"PathPart": "todos"})
	template.HasResourceProperties(jsii.String("AWS::ApiGateway::Resource"), map[string]any{"PathPart": "{id}"})
	for _, method := range []string{"GET", "POST", "PUT", "DELETE"} {
		template.HasResourceProperties(jsii.String("AWS::ApiGateway::Method"), map[string]any{
			"HttpMethod":  method,
			"Integration": map[string]any{"Type": "AWS_PROXY"},
		})
	}
	template.HasResourceProperties(jsii.String("AWS::ApiGateway::Method"), map[string]any{"HttpMethod": "OPTIONS"})
	template.HasResourceProperties(jsii.String("AWS::IAM::Policy"), map[string]any{
		"PolicyDocument": map[string]any{
			"Statement": assertions.Match_ArrayWith(&[]any{
				assertions.Match_ObjectLike(&map[string]any{
					"Action": assertions.Match_ArrayWith(&[]any{"dynamodb:PutItem", "dynamodb:Query"}),
					"Effect": "Allow",
				}),
			}),
		},
	})
	template.HasOutput(jsii.String(todostack.OutputAPIURL), map[string]any{})
	template.HasOutput(jsii.String(todostack.OutputTableName), map[string]any{})
}

func TestNewTodoStack_HTTP(t *testing.T) {
	requireNode(t)
	graph := prebuiltGraph(t, todostack.RoutingHTTP)

	ts, err := NewTodoStack(awscdk.NewApp(nil), graph)
	require.NoError(t, err)
	require.NotNil(t, ts.HTTPAPI)
	assert.Nil(t, ts.RestAPI)

	template := assertions.Template_FromStack(ts.Stack, nil)
	template.ResourceCountIs(jsii.String("AWS::ApiGatewayV2::Api"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::ApiGatewayV2::Api"), map[string]any{
		"ProtocolType": "HTTP",
		"CorsConfiguration": map[string]any{
			"AllowOrigins": []any{"*"},
			"AllowMethods": []any{"*"},
			"AllowHeaders": []any{"*"},
		},
	})
	template.ResourceCountIs(jsii.String("AWS::ApiGatewayV2::Route"), jsii.Number(len(graph.Routing.Routes)))
	for _, key := range graph.Routing.RouteKeys() {
		template.HasResourceProperties(jsii.String("AWS::ApiGatewayV2::Route"), map[string]any{"RouteKey": key})
	}
	template.HasResourceProperties(jsii.String("AWS::ApiGatewayV2::Integration"), map[string]any{
		"IntegrationType":      "AWS_PROXY",
		"PayloadFormatVersion": "1.0",
	})
	template.HasResourceProperties(jsii.String("AWS::ApiGatewayV2::Stage"), map[string]any{"StageName": "$default"})
}

func TestNewTodoStack_ClosedCORS(t *testing.T) {
	requireNode(t)
	dir := artifactDir(t)
	decl := todostack.DefaultDeclaration("todo-api")
	decl.Routing.CORSPreset = todostack.CORSPresetNone
	decl.Compute.Entry = todostack.Entry{Packaging: todostack.PackagingPrebuilt, Path: dir, Handler: "bootstrap"}
	graph, err := todostack.Assemble(decl)
	require.NoError(t, err)

	ts, err := NewTodoStack(awscdk.NewApp(nil), graph)
	require.NoError(t, err)

	template := assertions.Template_FromStack(ts.Stack, nil)
	methods := template.FindResources(jsii.String("AWS::ApiGateway::Method"), map[string]any{
		"Properties": map[string]any{"HttpMethod": "OPTIONS"},
	})
	assert.Empty(t, *methods)
}

func TestNewTodoStack_RejectsIncompleteGraph(t *testing.T) {
	_, err := NewTodoStack(nil, &todostack.Graph{})
	require.Error(t, err)

	requireNode(t)
	_, err = NewTodoStack(awscdk.NewApp(nil), &todostack.Graph{})
	require.Error(t, err)
}

func TestSynthesizer_Provision(t *testing.T) {
	requireNode(t)
	src := artifactDir(t)
	decl := todostack.DefaultDeclaration("todo-api")
	decl.Compute.Entry.Path = src
	graph, err := todostack.Assemble(decl)
	require.NoError(t, err)

	synth := NewSynthesizer(WithOutdir(t.TempDir()), WithoutBundling())
	assert.Equal(t, BackendName, synth.Name())

	out, err := todostack.Provision(context.Background(), synth, graph)
	require.NoError(t, err)
	assert.Equal(t, "todo-api-todos-dev", out.TableName)
	assert.Equal(t, graph.StackName+".ApiUrl", out.APIURL)
}

func TestDeferredOutput(t *testing.T) {
	assert.Equal(t, "todo-api-dev.ApiUrl", DeferredOutput("todo-api-dev", todostack.OutputAPIURL))
}
