package multicluster

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	compute "cloud.google.com/go/compute/apiv1"
	computepb "cloud.google.com/go/compute/apiv1/computepb"
)

// eksARN matches an EKS cluster ARN, e.g.
// arn:aws:eks:us-west-2:123456789012:cluster/prod.
var eksARN = regexp.MustCompile(`^arn:aws:eks:([a-z0-9-]+):\d+:cluster/(.+)$`)

// gkeContext matches a gcloud-generated kubeconfig context name, e.g.
// gke_my-project_us-central1-a_prod-cluster.
var gkeContext = regexp.MustCompile(`^gke_([^_]+)_([^_]+)_(.+)$`)

// AnnotateContextName enriches a kubeconfig context name with a
// human-readable cloud label for the printed multi-cluster report, purely
// cosmetic — it never influences scoring or aggregation (§4.G remains
// cloud-agnostic). EKS-ARN-shaped names are resolved against the AWS EC2
// region API; GKE-shaped names against the GCP Compute zones API. Any
// other shape, or an API error, returns the name unchanged.
func AnnotateContextName(ctx context.Context, contextName string) string {
	if m := eksARN.FindStringSubmatch(contextName); m != nil {
		return annotateEKS(ctx, contextName, m[1], m[2])
	}
	if m := gkeContext.FindStringSubmatch(contextName); m != nil {
		return annotateGKE(ctx, contextName, m[1], m[2], m[3])
	}
	return contextName
}

func annotateEKS(ctx context.Context, contextName, region, clusterName string) string {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		slog.Warn("multi-cluster: failed to load AWS config for cluster annotation", "context", contextName, "error", err)
		return contextName
	}

	client := ec2.NewFromConfig(cfg)
	out, err := client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{RegionNames: []string{region}})
	if err != nil || len(out.Regions) == 0 {
		return contextName
	}

	return contextName + " (eks:" + clusterName + "@" + region + ", " + strings.TrimSuffix(*out.Regions[0].Endpoint, "/") + ")"
}

func annotateGKE(ctx context.Context, contextName, project, zone, clusterName string) string {
	client, err := compute.NewZonesRESTClient(ctx)
	if err != nil {
		slog.Warn("multi-cluster: failed to create GCP compute client for cluster annotation", "context", contextName, "error", err)
		return contextName
	}
	defer client.Close()

	resp, err := client.Get(ctx, &computepb.GetZoneRequest{Project: project, Zone: zone})
	if err != nil || resp.Region == nil {
		return contextName
	}

	return contextName + " (gke:" + clusterName + "@" + project + "/" + zone + ")"
}
