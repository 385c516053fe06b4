/*
Copyright (C) 2025 [GrainArc]

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published
by the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package Georef

import (
	"context"
	"runtime"
)

// WorkerPool 工作池 - 控制并发数量
type WorkerPool struct {
	semaphore chan struct{}
	size      int
}

// DefaultWorkerCount 默认并发数，CPU核心数，上限8
func DefaultWorkerCount() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	return n
}

// NewWorkerPool 创建工作池，size小于1时按1处理
func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		semaphore: make(chan struct{}, size),
		size:      size,
	}
}

// Size 工作槽数量
func (p *WorkerPool) Size() int {
	return p.size
}

// Acquire 获取工作槽，ctx取消时返回错误
func (p *WorkerPool) Acquire(ctx context.Context) error {
	select {
	case p.semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release 释放工作槽
func (p *WorkerPool) Release() {
	<-p.semaphore
}

// Execute 在工作池中执行操作
func (p *WorkerPool) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.Acquire(ctx); err != nil {
		return err
	}
	defer p.Release()
	return fn(ctx)
}
