// Package redis provides the Redis history store and distributed locker.
package redis
