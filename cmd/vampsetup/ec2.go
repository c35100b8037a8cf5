// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// tagKey marks security groups created by vampsetup.
const tagKey = "gvamp-sg"

// setupSecurityGroup returns the ID of the named security group,
// creating it in the account's default VPC if it does not exist.
func setupSecurityGroup(svc ec2iface.EC2API, name string) (string, error) {
	describe, err := svc.DescribeSecurityGroups(&ec2.DescribeSecurityGroupsInput{
		Filters: []*ec2.Filter{filter("group-name", name)},
	})
	if err != nil {
		return "", errors.E(errors.Net, fmt.Sprintf("query security group %s", name), err)
	}
	if len(describe.SecurityGroups) > 0 {
		id := aws.StringValue(describe.SecurityGroups[0].GroupId)
		log.Printf("found existing security group %s", id)
		return id, nil
	}
	vpcs, err := svc.DescribeVpcs(&ec2.DescribeVpcsInput{
		Filters: []*ec2.Filter{filter("isDefault", "true")},
	})
	if err != nil {
		return "", errors.E(errors.Net, "retrieve default VPC", err)
	}
	switch len(vpcs.Vpcs) {
	case 0:
		return "", errors.E(errors.NotExist, "AWS account does not have a default VPC and requires manual setup")
	case 1:
	default:
		return "", errors.E(errors.Invalid, "AWS account has multiple default VPCs; needs manual setup")
	}
	vpc := vpcs.Vpcs[0]
	log.Printf("creating security group %s in default VPC %s", name, aws.StringValue(vpc.VpcId))
	created, err := svc.CreateSecurityGroup(&ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String("security group automatically created by vampsetup"),
		VpcId:       vpc.VpcId,
	})
	if err != nil {
		return "", errors.E(fmt.Sprintf("create security group %s", name), err)
	}
	id := aws.StringValue(created.GroupId)
	_, err = svc.AuthorizeSecurityGroupIngress(&ec2.AuthorizeSecurityGroupIngressInput{
		GroupName:     aws.String(name),
		IpPermissions: ingress(aws.StringValue(vpc.CidrBlock)),
	})
	if err != nil {
		return "", errors.E(fmt.Sprintf("authorize ingress for security group %s", id), err)
	}
	_, err = svc.CreateTags(&ec2.CreateTagsInput{
		Resources: []*string{aws.String(id)},
		Tags: []*ec2.Tag{
			{Key: aws.String(tagKey), Value: aws.String("true")},
			{Key: aws.String("Name"), Value: aws.String("gvamp")},
		},
	})
	if err != nil {
		log.Error.Printf("tag security group %s: %v", id, err)
	}
	log.Printf("created security group %s", id)
	return id, nil
}

func filter(name, value string) *ec2.Filter {
	return &ec2.Filter{Name: aws.String(name), Values: []*string{aws.String(value)}}
}

// ingress returns the inbound rules of the security group: all traffic
// within the VPC, which carries the group's reductions, and SSH and
// HTTPS from anywhere. Egress is left at the default, which permits
// all outbound traffic.
func ingress(vpcCIDR string) []*ec2.IpPermission {
	tcp := func(port int64) *ec2.IpPermission {
		return &ec2.IpPermission{
			IpProtocol: aws.String("tcp"),
			IpRanges:   []*ec2.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
			FromPort:   aws.Int64(port),
			ToPort:     aws.Int64(port),
		}
	}
	return []*ec2.IpPermission{
		{
			IpProtocol: aws.String("-1"),
			IpRanges:   []*ec2.IpRange{{CidrIp: aws.String(vpcCIDR)}},
			FromPort:   aws.Int64(0),
			ToPort:     aws.Int64(0),
		},
		tcp(22),
		tcp(443),
	}
}
