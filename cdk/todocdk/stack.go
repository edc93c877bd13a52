// Package todocdk renders an assembled todostack graph as an AWS CDK stack.
package todocdk

import (
	"errors"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsapigateway"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsapigatewayv2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsapigatewayv2integrations"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3assets"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"github.com/theory-cloud/todostack"
)

// DefaultGoBuildImage compiles the handler when the entry declares no build image.
const DefaultGoBuildImage = "public.ecr.aws/docker/library/golang:1.26"

// TodoStack holds the constructs created for one graph. Exactly one of RestAPI and
// HTTPAPI is set.
type TodoStack struct {
	Stack    awscdk.Stack
	Table    awsdynamodb.Table
	Function awslambda.Function
	RestAPI  awsapigateway.RestApi
	HTTPAPI  awsapigatewayv2.HttpApi
	APIURL   *string
}

// NewTodoStack declares the graph's table, function, grant, front door and outputs
// inside a new stack under scope.
func NewTodoStack(scope constructs.Construct, graph *todostack.Graph) (*TodoStack, error) {
	if scope == nil {
		return nil, errors.New("todocdk: scope is required")
	}
	if !graph.Complete() {
		return nil, errors.New("todocdk: graph is not fully assembled")
	}

	props := &awscdk.StackProps{StackName: jsii.String(graph.StackName)}
	if graph.Region != "" {
		props.Env = &awscdk.Environment{Region: jsii.String(graph.Region)}
	}
	stack := awscdk.NewStack(scope, jsii.String(graph.StackID), props)
	out := &TodoStack{Stack: stack}

	out.Table = newTable(stack, graph.Table)
	out.Function = newFunction(stack, graph.Compute, out.Table)
	out.Table.GrantReadWriteData(out.Function)

	switch graph.Routing.Kind {
	case todostack.RoutingRest:
		out.RestAPI = newRestAPI(stack, graph.Routing, out.Function)
		out.APIURL = out.RestAPI.Url()
	case todostack.RoutingHTTP:
		out.HTTPAPI, out.APIURL = newHTTPAPI(stack, graph.Routing, out.Function)
	default:
		return nil, errors.New("todocdk: unknown routing kind " + string(graph.Routing.Kind))
	}

	awscdk.NewCfnOutput(stack, jsii.String(todostack.OutputAPIURL), &awscdk.CfnOutputProps{
		Value: out.APIURL,
	})
	awscdk.NewCfnOutput(stack, jsii.String(todostack.OutputTableName), &awscdk.CfnOutputProps{
		Value: out.Table.TableName(),
	})
	return out, nil
}

func newTable(stack awscdk.Stack, spec todostack.Table) awsdynamodb.Table {
	table := awsdynamodb.NewTable(stack, jsii.String(spec.LogicalName), &awsdynamodb.TableProps{
		TableName:     jsii.String(spec.Identifier),
		PartitionKey:  attribute(spec.PartitionKey),
		BillingMode:   billingMode(spec.Billing),
		RemovalPolicy: awscdk.RemovalPolicy_DESTROY,
	})
	if idx := spec.Index; idx != nil {
		table.AddGlobalSecondaryIndex(&awsdynamodb.GlobalSecondaryIndexProps{
			IndexName:      jsii.String(idx.Name),
			PartitionKey:   attribute(idx.PartitionKey),
			ProjectionType: awsdynamodb.ProjectionType_ALL,
		})
	}
	return table
}

func attribute(key todostack.KeyDef) *awsdynamodb.Attribute {
	kind := awsdynamodb.AttributeType_STRING
	switch key.Type {
	case todostack.KeyTypeNumber:
		kind = awsdynamodb.AttributeType_NUMBER
	case todostack.KeyTypeBinary:
		kind = awsdynamodb.AttributeType_BINARY
	}
	return &awsdynamodb.Attribute{Name: jsii.String(key.Name), Type: kind}
}

func billingMode(mode todostack.BillingMode) awsdynamodb.BillingMode {
	if mode == todostack.BillingProvisioned {
		return awsdynamodb.BillingMode_PROVISIONED
	}
	return awsdynamodb.BillingMode_PAY_PER_REQUEST
}

func newFunction(stack awscdk.Stack, unit todostack.ComputeUnit, table awsdynamodb.Table) awslambda.Function {
	rt := runtime(unit.Runtime)

	env := map[string]*string{}
	for k, v := range unit.Environment() {
		env[k] = jsii.String(v)
	}
	env[todostack.EnvTableName] = table.TableName()

	return awslambda.NewFunction(stack, jsii.String(unit.LogicalName), &awslambda.FunctionProps{
		Runtime:      rt,
		Handler:      jsii.String(unit.Entry.Handler),
		Code:         code(unit, rt),
		Timeout:      awscdk.Duration_Seconds(jsii.Number(float64(unit.TimeoutSeconds()))),
		Environment:  &env,
		Architecture: awslambda.Architecture_ARM_64(),
	})
}

func runtime(name string) awslambda.Runtime {
	switch name {
	case "provided.al2023":
		return awslambda.Runtime_PROVIDED_AL2023()
	case "provided.al2":
		return awslambda.Runtime_PROVIDED_AL2()
	case "python3.12":
		return awslambda.Runtime_PYTHON_3_12()
	case "nodejs20.x":
		return awslambda.Runtime_NODEJS_20_X()
	}
	family := awslambda.RuntimeFamily_OTHER
	switch {
	case strings.HasPrefix(name, "python"):
		family = awslambda.RuntimeFamily_PYTHON
	case strings.HasPrefix(name, "nodejs"):
		family = awslambda.RuntimeFamily_NODEJS
	case strings.HasPrefix(name, "java"):
		family = awslambda.RuntimeFamily_JAVA
	}
	return awslambda.NewRuntime(jsii.String(name), family, nil)
}

func code(unit todostack.ComputeUnit, rt awslambda.Runtime) awslambda.Code {
	entry := unit.Entry
	if entry.Packaging == todostack.PackagingPrebuilt {
		return awslambda.Code_FromAsset(jsii.String(entry.Path), nil)
	}

	image := rt.BundlingImage()
	switch {
	case entry.BuildImage != "":
		image = awscdk.DockerImage_FromRegistry(jsii.String(entry.BuildImage))
	case strings.HasPrefix(unit.Runtime, "provided"):
		image = awscdk.DockerImage_FromRegistry(jsii.String(DefaultGoBuildImage))
	}

	return awslambda.Code_FromAsset(jsii.String(entry.Path), &awss3assets.AssetOptions{
		Bundling: &awscdk.BundlingOptions{
			Image:   image,
			Command: jsii.Strings("bash", "-c", entry.BuildCommand),
			Environment: &map[string]*string{
				"GOCACHE": jsii.String("/tmp/go-cache"),
				"GOPATH":  jsii.String("/tmp/go"),
			},
		},
	})
}

func newRestAPI(stack awscdk.Stack, layer todostack.RoutingLayer, fn awslambda.Function) awsapigateway.RestApi {
	props := &awsapigateway.RestApiProps{
		RestApiName:   jsii.String(layer.LogicalName),
		DeployOptions: &awsapigateway.StageOptions{StageName: jsii.String(layer.StageName)},
	}
	if layer.CORS.Enabled() {
		props.DefaultCorsPreflightOptions = restCORS(layer.CORS)
	}
	api := awsapigateway.NewRestApi(stack, jsii.String(layer.LogicalName), props)

	integration := awsapigateway.NewLambdaIntegration(fn, nil)
	nodes := map[string]awsapigateway.IResource{"/": api.Root()}
	for _, res := range layer.Resources() {
		node := nodes[res.Parent].AddResource(jsii.String(res.Part), nil)
		nodes[res.Path] = node
		for _, method := range res.Methods {
			node.AddMethod(jsii.String(method), integration, nil)
		}
	}
	return api
}

func restCORS(policy todostack.CORSPolicy) *awsapigateway.CorsOptions {
	opts := &awsapigateway.CorsOptions{
		AllowOrigins: jsii.Strings(policy.AllowOrigins...),
		AllowMethods: awsapigateway.Cors_ALL_METHODS(),
		AllowHeaders: jsii.Strings(todostack.Wildcard),
	}
	if len(policy.AllowMethods) > 0 && !containsWildcard(policy.AllowMethods) {
		opts.AllowMethods = jsii.Strings(policy.AllowMethods...)
	}
	if len(policy.AllowHeaders) > 0 {
		opts.AllowHeaders = jsii.Strings(policy.AllowHeaders...)
	}
	if containsWildcard(policy.AllowOrigins) {
		opts.AllowOrigins = awsapigateway.Cors_ALL_ORIGINS()
	}
	if policy.AllowCredentials {
		opts.AllowCredentials = jsii.Bool(true)
	}
	if secs := policy.MaxAge.Seconds(); secs > 0 {
		opts.MaxAge = awscdk.Duration_Seconds(jsii.Number(secs))
	}
	return opts
}

func newHTTPAPI(stack awscdk.Stack, layer todostack.RoutingLayer, fn awslambda.Function) (awsapigatewayv2.HttpApi, *string) {
	defaultStage := layer.StageName == todostack.DefaultHTTPStage
	props := &awsapigatewayv2.HttpApiProps{
		ApiName:            jsii.String(layer.LogicalName),
		CreateDefaultStage: jsii.Bool(defaultStage),
	}
	if layer.CORS.Enabled() {
		props.CorsPreflight = httpCORS(layer.CORS)
	}
	api := awsapigatewayv2.NewHttpApi(stack, jsii.String(layer.LogicalName), props)

	integration := awsapigatewayv2integrations.NewHttpLambdaIntegration(jsii.String(layer.Target+"Integration"), fn,
		&awsapigatewayv2integrations.HttpLambdaIntegrationProps{
			PayloadFormatVersion: awsapigatewayv2.PayloadFormatVersion_VERSION_1_0(),
		})
	for _, route := range layer.Routes {
		api.AddRoutes(&awsapigatewayv2.AddRoutesOptions{
			Path:        jsii.String(route.Path),
			Methods:     &[]awsapigatewayv2.HttpMethod{awsapigatewayv2.HttpMethod(route.Method)},
			Integration: integration,
		})
	}

	if defaultStage {
		return api, api.Url()
	}
	stage := awsapigatewayv2.NewHttpStage(stack, jsii.String(layer.LogicalName+"Stage"), &awsapigatewayv2.HttpStageProps{
		HttpApi:    api,
		StageName:  jsii.String(layer.StageName),
		AutoDeploy: jsii.Bool(true),
	})
	return api, stage.Url()
}

func httpCORS(policy todostack.CORSPolicy) *awsapigatewayv2.CorsPreflightOptions {
	methods := []awsapigatewayv2.CorsHttpMethod{awsapigatewayv2.CorsHttpMethod_ANY}
	if len(policy.AllowMethods) > 0 && !containsWildcard(policy.AllowMethods) {
		methods = methods[:0]
		for _, m := range policy.AllowMethods {
			methods = append(methods, awsapigatewayv2.CorsHttpMethod(m))
		}
	}
	opts := &awsapigatewayv2.CorsPreflightOptions{
		AllowOrigins: jsii.Strings(policy.AllowOrigins...),
		AllowMethods: &methods,
		AllowHeaders: jsii.Strings(todostack.Wildcard),
	}
	if len(policy.AllowHeaders) > 0 {
		opts.AllowHeaders = jsii.Strings(policy.AllowHeaders...)
	}
	if policy.AllowCredentials {
		opts.AllowCredentials = jsii.Bool(true)
	}
	if secs := policy.MaxAge.Seconds(); secs > 0 {
		opts.MaxAge = awscdk.Duration_Seconds(jsii.Number(secs))
	}
	return opts
}

func containsWildcard(values []string) bool {
	for _, v := range values {
		if v == todostack.Wildcard {
			return true
		}
	}
	return false
}
