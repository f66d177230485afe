// Package handler implements the monitoring endpoints of the load balancer.
// They read the balancer's status and never change it.
package handler
