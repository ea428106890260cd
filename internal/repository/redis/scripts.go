package repository

import "github.com/redis/go-redis/v9"

// admitScript atomically checks lane occupancy and either claims an active
// slot or parks the session in the waiting set. Counting and inserting in one
// script closes the count-then-upsert race, so the lane cap is a hard limit.
//
// KEYS[1] active zset (scored by expiry, unix ms)
// KEYS[2] waiting zset (scored by queue entry time, unix ms)
// KEYS[3] events registry set
// KEYS[4] lanes registry set for the event
// ARGV[1] session id
// ARGV[2] lane max concurrent
// ARGV[3] now (unix ms)
// ARGV[4] expiry on admission (unix ms)
// ARGV[5] queue entry time (unix ms)
// ARGV[6] event id
// ARGV[7] lane
//
// Returns {1, 0} when admitted, {0, waitingAhead} when queued. The NX on the
// waiting ZADD keeps the original entry time for sessions already in line. Each
// branch removes the session from the other set: a re-entering session whose
// lapsed grant is still in the active set must not be left there for the
// sweeper to reap after it went back to waiting.
var admitScript = redis.NewScript(`
local occupancy = redis.call('ZCOUNT', KEYS[1], '(' .. ARGV[3], '+inf')
redis.call('SADD', KEYS[3], ARGV[6])
redis.call('SADD', KEYS[4], ARGV[7])
if occupancy < tonumber(ARGV[2]) then
	redis.call('ZADD', KEYS[1], ARGV[4], ARGV[1])
	redis.call('ZREM', KEYS[2], ARGV[1])
	return {1, 0}
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[2], 'NX', ARGV[5], ARGV[1])
local ahead = redis.call('ZCOUNT', KEYS[2], '-inf', '(' .. ARGV[5])
return {0, ahead}
`)

// reapScript removes every active member whose expiry is at or before now and
// returns the removed ids. Range and removal run in one script so two
// overlapping sweeps cannot both claim the same stale session.
//
// KEYS[1] active zset
// ARGV[1] now (unix ms)
var reapScript = redis.NewScript(`
local stale = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if #stale > 0 then
	redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
end
return stale
`)

// promoteScript moves the oldest waiting members into freed active slots. The
// ZREM-then-ZADD pair inside the script guarantees a waiting session is
// promoted at most once even under concurrent sweeps.
//
// KEYS[1] active zset
// KEYS[2] waiting zset
// ARGV[1] lane max concurrent
// ARGV[2] now (unix ms)
// ARGV[3] expiry for promoted sessions (unix ms)
var promoteScript = redis.NewScript(`
local occupancy = redis.call('ZCOUNT', KEYS[1], '(' .. ARGV[2], '+inf')
local spots = tonumber(ARGV[1]) - occupancy
if spots <= 0 then
	return {}
end
local ids = redis.call('ZRANGE', KEYS[2], 0, spots - 1)
if #ids > 0 then
	redis.call('ZREM', KEYS[2], unpack(ids))
	for _, id in ipairs(ids) do
		redis.call('ZADD', KEYS[1], ARGV[3], id)
	end
end
return ids
`)
