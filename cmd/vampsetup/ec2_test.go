// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/grailbio/base/config"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

type fakeEC2 struct {
	ec2iface.EC2API

	groups  []*ec2.SecurityGroup
	vpcs    []*ec2.Vpc
	created []string
	ingress []*ec2.IpPermission
	tags    []*ec2.Tag
}

func (f *fakeEC2) DescribeSecurityGroups(in *ec2.DescribeSecurityGroupsInput) (*ec2.DescribeSecurityGroupsOutput, error) {
	return &ec2.DescribeSecurityGroupsOutput{SecurityGroups: f.groups}, nil
}

func (f *fakeEC2) DescribeVpcs(in *ec2.DescribeVpcsInput) (*ec2.DescribeVpcsOutput, error) {
	return &ec2.DescribeVpcsOutput{Vpcs: f.vpcs}, nil
}

func (f *fakeEC2) CreateSecurityGroup(in *ec2.CreateSecurityGroupInput) (*ec2.CreateSecurityGroupOutput, error) {
	f.created = append(f.created, aws.StringValue(in.GroupName))
	return &ec2.CreateSecurityGroupOutput{GroupId: aws.String("sg-new")}, nil
}

func (f *fakeEC2) AuthorizeSecurityGroupIngress(in *ec2.AuthorizeSecurityGroupIngressInput) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	f.ingress = in.IpPermissions
	return &ec2.AuthorizeSecurityGroupIngressOutput{}, nil
}

func (f *fakeEC2) CreateTags(in *ec2.CreateTagsInput) (*ec2.CreateTagsOutput, error) {
	f.tags = in.Tags
	return &ec2.CreateTagsOutput{}, nil
}

func TestExistingSecurityGroup(t *testing.T) {
	svc := &fakeEC2{groups: []*ec2.SecurityGroup{{GroupId: aws.String("sg-old")}}}
	id, err := setupSecurityGroup(svc, "gvamp")
	assert.NoError(t, err)
	expect.EQ(t, id, "sg-old")
	expect.EQ(t, len(svc.created), 0)
}

func TestCreateSecurityGroup(t *testing.T) {
	svc := &fakeEC2{vpcs: []*ec2.Vpc{{VpcId: aws.String("vpc-1"), CidrBlock: aws.String("172.31.0.0/16")}}}
	id, err := setupSecurityGroup(svc, "gvamp")
	assert.NoError(t, err)
	expect.EQ(t, id, "sg-new")
	expect.EQ(t, svc.created, []string{"gvamp"})
	if got, want := len(svc.ingress), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	expect.EQ(t, aws.StringValue(svc.ingress[0].IpRanges[0].CidrIp), "172.31.0.0/16")
	expect.EQ(t, aws.Int64Value(svc.ingress[1].FromPort), int64(22))
	expect.EQ(t, aws.Int64Value(svc.ingress[2].FromPort), int64(443))
	expect.EQ(t, aws.StringValue(svc.tags[0].Key), tagKey)
}

func TestNoDefaultVPC(t *testing.T) {
	_, err := setupSecurityGroup(&fakeEC2{}, "gvamp")
	if !errors.Is(errors.NotExist, err) {
		t.Errorf("got %v, want not exist", err)
	}
	svc := &fakeEC2{vpcs: []*ec2.Vpc{{}, {}}}
	if _, err := setupSecurityGroup(svc, "gvamp"); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
}

func TestConfigure(t *testing.T) {
	profile := config.New()
	assert.NoError(t, configure(profile, "sg-new", "m5.large", 8))
	for key, want := range map[string]string{
		"gvamp.ranks":  "8",
		"gvamp.system": "bigmachine/ec2system",
	} {
		got, ok := profile.Get(key)
		if !ok {
			t.Errorf("%s not set", key)
			continue
		}
		if strings.Trim(got, `"`) != want {
			t.Errorf("%s: got %v, want %v", key, got, want)
		}
	}
	var buf bytes.Buffer
	assert.NoError(t, profile.PrintTo(&buf))
	if !strings.Contains(buf.String(), "sg-new") {
		t.Errorf("profile does not mention the security group:\n%s", buf.String())
	}
}
